package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/rankings/internal/domain/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given kinded errors", t, func() {
		Convey("NewKind carries the kind and op", func() {
			err := errs.NewKind("ranking.ComputeOne", errs.ErrNotFound)
			So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
			So(errs.IsNotFound(err), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "ranking.ComputeOne: not found")
		})

		Convey("WrapKind keeps the cause reachable", func() {
			cause := errors.New("connection reset")
			err := errs.WrapKind("store.List", errs.ErrUnexpected, cause)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, errs.ErrUnexpected), ShouldBeTrue)
			So(errs.WrapKind("op", errs.ErrUnexpected, nil), ShouldBeNil)
		})

		Convey("Wrap preserves an existing kind", func() {
			inner := errs.Invalidf("parse", "bad category %q", "P9")
			err := errs.Wrap("list", inner)
			So(errs.IsInvalid(err), ShouldBeTrue)
			So(errs.KindOf(err), ShouldEqual, errs.ErrInvalidArgument)
			So(err.Error(), ShouldContainSubstring, `bad category "P9"`)
		})

		Convey("Wrap classifies unknown failures as unexpected", func() {
			err := errs.Wrap("sql.Get", fmt.Errorf("driver: %w", errors.New("io")))
			So(errs.KindOf(err), ShouldEqual, errs.ErrUnexpected)
			So(errs.IsNotFound(err), ShouldBeFalse)
			So(errs.Wrap("op", nil), ShouldBeNil)
			So(errs.KindOf(nil), ShouldBeNil)
		})
	})
}
