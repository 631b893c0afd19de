package order

import "testing"

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Guy Mann "); got != "Guy Mann" {
		t.Errorf("NormalizeName = %q", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail(" Guy.Mann@Example.COM "); got != "guy.mann@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestNormalizeState(t *testing.T) {
	if got := NormalizeState(" ca "); got != "CA" {
		t.Errorf("NormalizeState = %q", got)
	}
}

func TestNormalizeZipcode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"12345", "12345"},
		{" 12345 ", "12345"},
		{"12345*6789", "12345-6789"},
		{"**", "--"},
	}
	for _, tt := range tests {
		if got := NormalizeZipcode(tt.in); got != tt.want {
			t.Errorf("NormalizeZipcode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBirthday(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		layout string
		want   string
	}{
		{"default layout", "1980-03-01", "2006-01-02", "1980-03-01"},
		{"whitespace trimmed", " 1980-03-01 ", "2006-01-02", "1980-03-01"},
		{"empty stays empty", "", "2006-01-02", ""},
		{"unparseable becomes sentinel", "03/01/1980", "2006-01-02", InvalidDate},
		{"custom layout", "03/01/1980", "01/02/2006", "1980-03-01"},
		// Re-normalizing a stored value must not destroy it.
		{"idempotent on iso input", "1980-03-01", "01/02/2006", "1980-03-01"},
		{"idempotent on sentinel", InvalidDate, "2006-01-02", InvalidDate},
	}
	for _, tt := range tests {
		if got := NormalizeBirthday(tt.in, tt.layout); got != tt.want {
			t.Errorf("%s: NormalizeBirthday(%q, %q) = %q, want %q", tt.name, tt.in, tt.layout, got, tt.want)
		}
	}
}
