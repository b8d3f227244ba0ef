package render

import "testing"

func TestSplitThink(t *testing.T) {
	cases := []struct {
		name      string
		input     string
		wantThink string
		wantResp  string
		wantFound bool
	}{
		{
			name:      "single block",
			input:     "<think>Check the gas limit first.</think>Raise the gas limit.",
			wantThink: "Check the gas limit first.",
			wantResp:  "Raise the gas limit.",
			wantFound: true,
		},
		{
			name:      "no block",
			input:     "Plain answer.",
			wantResp:  "Plain answer.",
			wantFound: false,
		},
		{
			name:      "empty block",
			input:     "<think></think>answer after empty think",
			wantResp:  "answer after empty think",
			wantFound: true,
		},
		{
			name:      "multiline block is trimmed",
			input:     "<think>\nfirst step\nsecond step\n</think>final",
			wantThink: "first step\nsecond step",
			wantResp:  "final",
			wantFound: true,
		},
		{
			name:      "several blocks in order",
			input:     "<think>one</think>Part A. <thinking>two</thinking>Part B.",
			wantThink: "one\n\ntwo",
			wantResp:  "Part A. Part B.",
			wantFound: true,
		},
		{
			name:      "unterminated block",
			input:     "Partial answer <think>still reasoning when the limit hit",
			wantThink: "still reasoning when the limit hit",
			wantResp:  "Partial answer",
			wantFound: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			think, resp, found := SplitThink(tc.input)
			if found != tc.wantFound {
				t.Fatalf("found = %v, want %v", found, tc.wantFound)
			}
			if think != tc.wantThink {
				t.Fatalf("think = %q, want %q", think, tc.wantThink)
			}
			if resp != tc.wantResp {
				t.Fatalf("response = %q, want %q", resp, tc.wantResp)
			}
		})
	}
}
