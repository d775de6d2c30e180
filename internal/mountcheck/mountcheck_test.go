package mountcheck

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moby/sys/mountinfo"

	"github.com/spin-stack/fsck-overlay/internal/config"
)

func fakeTable(infos []*mountinfo.Info, links map[string]string) *Table {
	return &Table{
		mounts: func() ([]*mountinfo.Info, error) { return infos, nil },
		resolve: func(p string) (string, error) {
			if p == "/gone" {
				return "", os.ErrNotExist
			}
			if r, ok := links[p]; ok {
				return r, nil
			}
			return p, nil
		},
	}
}

func TestMounted(t *testing.T) {
	infos := []*mountinfo.Info{
		{FSType: "ext4", Mountpoint: "/", VFSOptions: "rw,lowerdir=/l1"},
		{FSType: "overlay", Mountpoint: "/m1", VFSOptions: "rw,lowerdir=/a/l1:/a/l2,upperdir=/a/u,workdir=/a/w"},
		{FSType: "overlay", Mountpoint: "/m2", VFSOptions: "rw,lowerdir=rel/l1,upperdir=/b/u,workdir=/b/w"},
		{FSType: "overlay", Mountpoint: "/m3", VFSOptions: "rw,lowerdir=/gone:/c/l1"},
		{FSType: "overlay", Mountpoint: "/m4", VFSOptions: "rw,lowerdir=/link"},
		{FSType: "overlay", Mountpoint: "/m5", VFSOptions: `rw,lowerdir=/e/my\040layer:/e/a\072b,upperdir=/e/u\054v,workdir=/e/w\134x`},
		{FSType: "overlay", Mountpoint: "/m6", VFSOptions: `rw,lowerdir=/f/old\134:style:/f/next`},
	}
	table := fakeTable(infos, map[string]string{"/link": "/d/real"})

	tests := []struct {
		name      string
		paths     []string
		want      bool
		wantMatch string
	}{
		{"lower in use", []string{"/x", "/a/l2"}, true, "/a/l2"},
		{"work in use", []string{"/a/w"}, true, "/a/w"},
		{"not mounted", []string{"/x", "/y"}, false, ""},
		{"non overlay ignored", []string{"/l1"}, false, ""},
		{"relative mount skipped", []string{"/b/u"}, false, ""},
		{"unresolvable mount skipped", []string{"/c/l1"}, false, ""},
		{"mount dirs resolved", []string{"/d/real"}, true, "/d/real"},
		{"escaped space", []string{"/e/my layer"}, true, "/e/my layer"},
		{"escaped colon", []string{"/e/a:b"}, true, "/e/a:b"},
		{"escaped comma", []string{"/e/u,v"}, true, "/e/u,v"},
		{"escaped backslash", []string{`/e/w\x`}, true, `/e/w\x`},
		{"colon escaped at mount time", []string{"/f/old:style"}, true, "/f/old:style"},
		{"second lower after escaped colon", []string{"/f/next"}, true, "/f/next"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, match, err := table.Mounted(tc.paths)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want || match != tc.wantMatch {
				t.Errorf("Mounted(%q) = %v, %q, want %v, %q", tc.paths, got, match, tc.want, tc.wantMatch)
			}
		})
	}
}

func TestMountedTableError(t *testing.T) {
	boom := errors.New("boom")
	table := &Table{mounts: func() ([]*mountinfo.Info, error) { return nil, boom }}
	if _, _, err := table.Mounted([]string{"/a"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestParseVFSOptions(t *testing.T) {
	d, err := parseVFSOptions(`rw,relatime,lowerdir=/l\0401:/l2,upperdir=/u,workdir=/w,index=off`)
	if err != nil {
		t.Fatal(err)
	}
	want := config.Dirs{Lower: []string{"/l 1", "/l2"}, Upper: "/u", Work: "/w"}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("parseVFSOptions mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseVFSOptions(`lowerdir=/bad\9`); err == nil {
		t.Error("expected an error for a malformed escape")
	}
}
