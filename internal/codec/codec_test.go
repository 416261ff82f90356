package codec

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", FormatPNG, false},
		{"PNG", FormatPNG, false},
		{"jpeg", FormatJPEG, false},
		{"jpg", FormatJPEG, false},
		{"JPG", FormatJPEG, false},
		{"webp", FormatWEBP, false},
		{"bmp", FormatBMP, false},
		{" png ", FormatPNG, false},
		{"tiff", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseFormat(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatExt(t *testing.T) {
	if got := FormatPNG.Ext(); got != ".png" {
		t.Errorf("png ext = %q", got)
	}
	if got := FormatJPEG.Ext(); got != ".jpg" {
		t.Errorf("jpeg ext = %q", got)
	}
	if got := FormatWEBP.Ext(); got != ".webp" {
		t.Errorf("webp ext = %q", got)
	}
	if got := FormatBMP.Ext(); got != ".bmp" {
		t.Errorf("bmp ext = %q", got)
	}
}

func TestClampQuality(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, 1}, {0, 1}, {1, 1}, {50, 50}, {100, 100}, {101, 100}, {1000, 100},
	}
	for _, c := range cases {
		if got := ClampQuality(c.in); got != c.want {
			t.Errorf("ClampQuality(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestUsesQuality(t *testing.T) {
	if FormatPNG.UsesQuality() || FormatBMP.UsesQuality() {
		t.Error("lossless formats should not use quality")
	}
	if !FormatJPEG.UsesQuality() || !FormatWEBP.UsesQuality() {
		t.Error("jpeg and webp should use quality")
	}
}

func TestDestPath(t *testing.T) {
	got := DestPath("/out", "IMG_0001.HEIC", FormatPNG)
	want := filepath.Join("/out", "IMG_0001.png")
	if got != want {
		t.Errorf("DestPath = %q, want %q", got, want)
	}

	got = DestPath("/out", "photo.heif", FormatJPEG)
	want = filepath.Join("/out", "photo.jpg")
	if got != want {
		t.Errorf("DestPath = %q, want %q", got, want)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	if err := writeFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("writeFileAtomic failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("unexpected content %q", data)
	}

	// Overwriting the same destination must replace the whole file.
	if err := writeFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("writeFileAtomic overwrite failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("unexpected content after overwrite: %q", data)
	}

	// No temp files may remain in the directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the destination file in %s, found %d entries", dir, len(entries))
	}
}

func TestWriteFileAtomicBadDir(t *testing.T) {
	err := writeFileAtomic(filepath.Join(t.TempDir(), "missing", "out.png"), []byte("x"))
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}
