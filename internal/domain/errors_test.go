package domain

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOpError(t *testing.T) {
	Convey("Given an OpError", t, func() {
		cause := errors.New("550 permission denied")
		err := Wrap(ErrUpload, "upload", "alpha", cause)

		Convey("It should match both its kind and its cause", func() {
			So(errors.Is(err, ErrUpload), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, ErrArchive), ShouldBeFalse)
		})

		Convey("It should name the folder and the operation", func() {
			So(err.Error(), ShouldEqual, "upload error: upload [alpha]: 550 permission denied")
		})

		Convey("Without a folder the brackets are omitted", func() {
			err := Wrap(ErrRetention, "remove backups-2024-01-01", "", cause)
			So(err.Error(), ShouldEqual, "retention error: remove backups-2024-01-01: 550 permission denied")
		})

		Convey("Wrapping nil yields nil", func() {
			So(Wrap(ErrUpload, "upload", "alpha", nil), ShouldBeNil)
		})
	})
}

func TestBackupRunCounters(t *testing.T) {
	Convey("Given a run with mixed job states", t, func() {
		run := &BackupRun{Jobs: []*FolderJob{
			{Name: "alpha", Status: FolderUploaded},
			{Name: "gamma", Status: FolderSkippedNoSpace},
			{Name: "beta", Status: FolderUploaded},
		}}

		So(run.Count(FolderUploaded), ShouldEqual, 2)
		So(run.Count(FolderFailed), ShouldEqual, 0)
		So(run.Names(FolderUploaded), ShouldResemble, []string{"alpha", "beta"})
		So(run.Names(FolderSkippedNoSpace), ShouldResemble, []string{"gamma"})
	})
}
