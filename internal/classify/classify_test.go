package classify

import (
	"fmt"
	"testing"

	"github.com/qloooooop1/guardian/internal/policy"
)

func defaultPolicy() *policy.ChatPolicy {
	return policy.Default()
}

func TestClassify_Phone(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"plus country code", "+966501234567", KindPhone},
		{"international zero form", "00966501234567", KindPhone},
		{"bare country code", "966501234567", KindPhone},
		{"separators between digits", "+966 50-123*45.67", KindPhone},
		{"arabic-indic digits", "+٩٦٦٥٠١٢٣٤٥٦٧", KindPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.text, pol)
			if !v.Violation {
				t.Fatalf("Classify(%q) clean, want violation", tt.text)
			}
			if v.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", tt.text, v.Kind, tt.want)
			}
			if v.Matched == "" {
				t.Errorf("Classify(%q).Matched empty", tt.text)
			}
		})
	}
}

// Arabic-Indic prefixes normalize before matching, so +٩٦٦ behaves like
// +966. The property from the detection contract: any normalized 9–12 digit
// run behind a recognized prefix is a phone hit.
func TestClassify_PhonePrefixedRuns(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()

	for digits := 9; digits <= 12; digits++ {
		run := ""
		for i := 0; i < digits; i++ {
			run += fmt.Sprintf("%d", (i+1)%10)
		}
		text := "+966" + run
		t.Run(fmt.Sprintf("%d digits", digits), func(t *testing.T) {
			v := c.Classify(text, pol)
			if !v.Violation || v.Kind != KindPhone {
				t.Errorf("Classify(%q) = %+v, want Phone violation", text, v)
			}
		})
	}
}

func TestClassify_ContextualPhone(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{"english call", "call me 0501234567", KindContextualPhone},
		{"whatsapp keyword", "whatsapp +1 5551234567", KindContextualPhone},
		{"arabic keyword arabic digits", "اتصل ٠٥٠١٢٣٤٥٦٧", KindContextualPhone},
		{"phone glyph", "📞 0501234567", KindContextualPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.text, pol)
			if !v.Violation {
				t.Fatalf("Classify(%q) clean, want violation", tt.text)
			}
			if v.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", tt.text, v.Kind, tt.want)
			}
		})
	}
}

func TestClassify_Links(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OwnLinkUsernames = []string{"mychannel"}
	c := New(cfg)

	pol := defaultPolicy()
	pol.AllowedDomains = append(pol.AllowedDomains, "t.me")

	tests := []struct {
		name      string
		text      string
		violation bool
		want      Kind
	}{
		{"whatsapp group invite", "join https://chat.whatsapp.com/AbCdEf123", true, KindInviteLink},
		{"wa.me link", "wa.me/9665012345", true, KindInviteLink},
		{"telegram joinchat", "https://t.me/joinchat/AAAAAEkk2WdoDrB4-Q8-gg", true, KindInviteLink},
		{"telegram plus invite", "t.me/+AbCdEfGhIjKl", true, KindInviteLink},
		{"foreign telegram channel", "t.me/otherchannel", true, KindInviteLink},
		{"own telegram channel", "t.me/mychannel", false, Kind("")},
		{"tiktok", "https://vm.tiktok.com/ZMabc/", true, KindInviteLink},
		{"bitly", "bit.ly/3xyz", true, KindShortLink},
		{"tinyurl", "https://tinyurl.com/abc", true, KindShortLink},
		{"allowed youtube", "check this out https://youtube.com/xyz", false, Kind("")},
		{"allowed instagram", "www.instagram.com/someone", false, Kind("")},
		{"unknown domain", "visit evil-deals.com/win now", true, KindDisallowedURL},
		{"unknown bare domain", "promo.example.net", true, KindDisallowedURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.text, pol)
			if v.Violation != tt.violation {
				t.Fatalf("Classify(%q).Violation = %v, want %v (kind=%q matched=%q)",
					tt.text, v.Violation, tt.violation, v.Kind, v.Matched)
			}
			if tt.violation && v.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %q, want %q", tt.text, v.Kind, tt.want)
			}
		})
	}
}

func TestClassify_BannedTerms(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()
	pol.BannedKeywords = []string{"casino"}
	pol.BannedLinkFragments = []string{"spam.site"}

	tests := []struct {
		name    string
		text    string
		matched string
	}{
		{"keyword case-insensitive", "visit the CASINO tonight", "casino"},
		{"fragment in url", "go to https://spam.site/win", "spam.site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.text, pol)
			if !v.Violation || v.Kind != KindBannedKeyword {
				t.Fatalf("Classify(%q) = %+v, want BannedKeyword", tt.text, v)
			}
			if v.Matched != tt.matched {
				t.Errorf("Matched = %q, want %q", v.Matched, tt.matched)
			}
		})
	}
}

func TestClassify_PhoneAndLink(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()

	// A 5-digit run is below the plain phone threshold and youtube.com is
	// allow-listed, but together they read as contact spam.
	v := c.Classify("12345 youtube.com", pol)
	if !v.Violation || v.Kind != KindPhoneAndLink {
		t.Fatalf("Classify(short number + allowed link) = %+v, want PhoneAndLink", v)
	}
}

func TestClassify_Clean(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()

	clean := []string{
		"",
		"   ",
		"hello, how is everyone?",
		"صباح الخير جميعا",
		"meeting at 5",
		"check this out https://youtube.com/xyz",
	}

	for _, text := range clean {
		if v := c.Classify(text, pol); v.Violation {
			t.Errorf("Classify(%q) = %+v, want clean", text, v)
		}
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	c := New(DefaultConfig())
	pol := defaultPolicy()
	pol.BannedKeywords = []string{"promo"}

	// Phone outranks everything else present in the same message.
	v := c.Classify("+966501234567 promo bit.ly/x", pol)
	if v.Kind != KindPhone {
		t.Errorf("Kind = %q, want %q (phone wins priority)", v.Kind, KindPhone)
	}

	// Invite outranks keyword and disallowed URL.
	v = c.Classify("promo at chat.whatsapp.com/abc", pol)
	if v.Kind != KindInviteLink {
		t.Errorf("Kind = %q, want %q (invite wins priority)", v.Kind, KindInviteLink)
	}
}
