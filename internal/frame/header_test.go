package frame

import "testing"

func TestExtractHeader_Basic(t *testing.T) {
	game := []byte(`[Event "Test"]
[WhiteElo "2105"]
[BlackElo "1998"]
[ECO "B33"]
[Result "1-0"]

1. e4 c5 1-0
`)
	h := ExtractHeader(game, "2013-01")

	if !h.WhiteOK || h.WhiteElo != 2105 {
		t.Errorf("WhiteElo = (%d, %v), want (2105, true)", h.WhiteElo, h.WhiteOK)
	}
	if !h.BlackOK || h.BlackElo != 1998 {
		t.Errorf("BlackElo = (%d, %v), want (1998, true)", h.BlackElo, h.BlackOK)
	}
	if h.ECO != "B33" {
		t.Errorf("ECO = %q, want B33", h.ECO)
	}
	if h.Result != ResultWhiteWin {
		t.Errorf("Result = %v, want ResultWhiteWin", h.Result)
	}
	if h.Month != "2013-01" {
		t.Errorf("Month = %q, want 2013-01", h.Month)
	}
}

func TestExtractHeader_MissingEloSentinels(t *testing.T) {
	tests := []struct {
		name string
		tag  string
	}{
		{"question mark", `[WhiteElo "?"]`},
		{"empty string", `[WhiteElo ""]`},
		{"non-numeric", `[WhiteElo "unrated"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := []byte(tt.tag + "\n[Result \"1-0\"]\n\n1. e4 1-0\n")
			h := ExtractHeader(game, "2013-01")
			if h.WhiteOK {
				t.Errorf("WhiteOK = true, want false for %s", tt.name)
			}
		})
	}
}

func TestExtractHeader_MissingTagIsAbsent(t *testing.T) {
	game := []byte("[Result \"1-0\"]\n\n1. e4 1-0\n")
	h := ExtractHeader(game, "2013-01")
	if h.WhiteOK || h.BlackOK {
		t.Error("expected both ratings absent when tags are missing entirely")
	}
}

func TestExtractHeader_MalformedECO(t *testing.T) {
	tests := []string{"B3", "B333", "33B", "", "Z99"}
	for _, eco := range tests {
		game := []byte(`[ECO "` + eco + `"]` + "\n[Result \"1-0\"]\n\n1. e4 1-0\n")
		h := ExtractHeader(game, "2013-01")
		if h.ECO != "" {
			t.Errorf("ECO %q: got h.ECO=%q, want empty (absent)", eco, h.ECO)
		}
	}
}

func TestExtractHeader_ResultMapping(t *testing.T) {
	tests := []struct {
		token string
		want  Result
	}{
		{"1-0", ResultWhiteWin},
		{"0-1", ResultBlackWin},
		{"1/2-1/2", ResultDraw},
		{"*", ResultOther},
		{"garbage", ResultOther},
	}
	for _, tt := range tests {
		game := []byte(`[Result "` + tt.token + `"]` + "\n\n1. e4 " + tt.token + "\n")
		h := ExtractHeader(game, "2013-01")
		if h.Result != tt.want {
			t.Errorf("Result %q: got %v, want %v", tt.token, h.Result, tt.want)
		}
	}
}

func TestExtractHeader_EscapedQuoteInValue(t *testing.T) {
	game := []byte(`[Event "World \"Championship\""]` + "\n[Result \"1-0\"]\n\n1. e4 1-0\n")
	// Should not choke on the embedded escaped quotes; Result still parses.
	h := ExtractHeader(game, "2013-01")
	if h.Result != ResultWhiteWin {
		t.Errorf("Result = %v, want ResultWhiteWin after escaped-quote tag", h.Result)
	}
}

func TestExtractHeader_CRLFLineEndings(t *testing.T) {
	game := []byte("[WhiteElo \"2000\"]\r\n[Result \"1-0\"]\r\n\r\n1. e4 1-0\r\n")
	h := ExtractHeader(game, "2013-01")
	if !h.WhiteOK || h.WhiteElo != 2000 {
		t.Errorf("WhiteElo = (%d, %v), want (2000, true) with CRLF input", h.WhiteElo, h.WhiteOK)
	}
}
