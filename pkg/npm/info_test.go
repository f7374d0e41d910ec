package npm

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/canopyscan/canopy/pkg/cache"
	"github.com/canopyscan/canopy/pkg/runner"
)

const lodashInfo = `{"type":"inspect","data":{"name":"lodash","version":"4.17.21","description":"Lodash modular utilities.","license":"MIT","homepage":"https://lodash.com/","repository":{"type":"git","url":"git+https://github.com/lodash/lodash.git"}}}`

func infoResolver(run runner.Runner, opts InfoOptions) *InfoResolver {
	return NewInfoResolver(run, log.New(io.Discard), opts)
}

func TestInfoResolverGet(t *testing.T) {
	run := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	r := infoResolver(run, InfoOptions{})

	info, err := r.Get(context.Background(), NewPackageID("lodash", "4.17.21"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info == nil {
		t.Fatal("Get returned nil for known package")
	}
	if info.Name != "lodash" || info.Version != "4.17.21" {
		t.Errorf("info = %+v", info)
	}
	if info.License != "MIT" {
		t.Errorf("License = %q, want MIT", info.License)
	}
	if info.Repository != "git+https://github.com/lodash/lodash.git" {
		t.Errorf("Repository = %q", info.Repository)
	}
}

func TestInfoResolverObjectLicense(t *testing.T) {
	run := runner.NewFake().Script("yarn info old@1.0.0 --json",
		`{"type":"inspect","data":{"name":"old","version":"1.0.0","license":{"type":"BSD-3-Clause"}}}`)
	r := infoResolver(run, InfoOptions{})

	info, err := r.Get(context.Background(), NewPackageID("old", "1.0.0"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.License != "BSD-3-Clause" {
		t.Errorf("License = %q, want BSD-3-Clause", info.License)
	}
}

func TestInfoResolverMemoized(t *testing.T) {
	run := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	r := infoResolver(run, InfoOptions{})
	id := NewPackageID("lodash", "4.17.21")

	for range 3 {
		if _, err := r.Get(context.Background(), id); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if n := run.CallCount("yarn info"); n != 1 {
		t.Errorf("yarn info invoked %d times, want 1", n)
	}
}

func TestInfoResolverUnknownPackageNotCached(t *testing.T) {
	run := runner.NewFake().Script("yarn info ghost@1.0.0 --json",
		`{"type":"error","data":"Received invalid response from npm."}`)
	r := infoResolver(run, InfoOptions{})
	id := NewPackageID("ghost", "1.0.0")

	for range 2 {
		info, err := r.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if info != nil {
			t.Fatalf("info = %+v, want nil for unknown package", info)
		}
	}
	// nil results are not cached: the next run may succeed.
	if n := run.CallCount("yarn info"); n != 2 {
		t.Errorf("yarn info invoked %d times, want 2", n)
	}
}

func TestInfoResolverCommandFailureDegrades(t *testing.T) {
	run := runner.NewFake().ScriptErr("yarn info gone@1.0.0 --json",
		runner.Result{ExitCode: 1}, runner.ErrCommandFailed)
	r := infoResolver(run, InfoOptions{})

	info, err := r.Get(context.Background(), NewPackageID("gone", "1.0.0"))
	if err != nil {
		t.Fatalf("Get: %v, want degraded nil result", err)
	}
	if info != nil {
		t.Errorf("info = %+v, want nil", info)
	}
}

func TestInfoResolverDiskCacheSharedAcrossRuns(t *testing.T) {
	disk, err := cache.NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	id := NewPackageID("lodash", "4.17.21")

	first := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	if _, err := infoResolver(first, InfoOptions{Cache: disk}).Get(context.Background(), id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := first.CallCount("yarn info"); n != 1 {
		t.Fatalf("yarn info invoked %d times, want 1", n)
	}

	// A fresh resolver with an empty memory cache hits the disk layer.
	second := runner.NewFake()
	info, err := infoResolver(second, InfoOptions{Cache: disk}).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info == nil || info.Name != "lodash" {
		t.Fatalf("disk cache miss: %+v", info)
	}
	if n := second.CallCount("yarn info"); n != 0 {
		t.Errorf("yarn info invoked %d times, want 0", n)
	}
}

func TestInfoResolverRefreshBypassesDisk(t *testing.T) {
	disk, err := cache.NewFileCache(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	id := NewPackageID("lodash", "4.17.21")

	first := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	if _, err := infoResolver(first, InfoOptions{Cache: disk}).Get(context.Background(), id); err != nil {
		t.Fatalf("Get: %v", err)
	}

	second := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	if _, err := infoResolver(second, InfoOptions{Cache: disk, Refresh: true}).Get(context.Background(), id); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := second.CallCount("yarn info"); n != 1 {
		t.Errorf("yarn info invoked %d times with refresh, want 1", n)
	}
}

func TestInfoResolverGetAll(t *testing.T) {
	run := runner.NewFake().
		Script("yarn info lodash@4.17.21 --json", lodashInfo).
		Script("yarn info express@4.18.2 --json",
			`{"type":"inspect","data":{"name":"express","version":"4.18.2","license":"MIT"}}`).
		Script("yarn info ghost@1.0.0 --json", `{"type":"error","data":"not found"}`)
	r := infoResolver(run, InfoOptions{Workers: 2})

	ids := []PackageID{
		NewPackageID("lodash", "4.17.21"),
		NewPackageID("express", "4.18.2"),
		NewPackageID("ghost", "1.0.0"),
		NewPackageID("lodash", "4.17.21"), // duplicate, dispatched once
	}
	infos, err := r.GetAll(context.Background(), ids)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d infos, want 2 (ghost has none)", len(infos))
	}
	if n := run.CallCount("yarn info lodash"); n != 1 {
		t.Errorf("lodash fetched %d times, want 1", n)
	}
}

func TestInfoResolverGetAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := runner.NewFake().Script("yarn info lodash@4.17.21 --json", lodashInfo)
	r := infoResolver(run, InfoOptions{})

	_, err := r.GetAll(ctx, []PackageID{NewPackageID("lodash", "4.17.21")})
	if err == nil {
		t.Error("GetAll on cancelled context returned nil error")
	}
}
