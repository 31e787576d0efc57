package gateway

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func feedAll(t *testing.T, chunks ...string) (StreamResult, error) {
	t.Helper()
	var acc StreamAccumulator
	for _, chunk := range chunks {
		if err := acc.Feed([]byte(chunk)); err != nil {
			return StreamResult{}, err
		}
	}
	return acc.Finish()
}

func TestDecodeSplitAtEveryOffset(t *testing.T) {
	stream := `{"message":{"role":"assistant","content":"The Tower "},"done":false}` + "\n" +
		`{"message":{"role":"assistant","content":"falls — ✨ renewal"},"done":false}` + "\n" +
		`{"message":{"role":"assistant","content":""},"done":true,"eval_count":9}` + "\n"

	whole, err := feedAll(t, stream)
	if err != nil {
		t.Fatalf("decode whole: %v", err)
	}
	if whole.Text != "The Tower falls — ✨ renewal" {
		t.Fatalf("unexpected text %q", whole.Text)
	}
	if !whole.Done {
		t.Fatalf("expected done")
	}

	for i := 1; i < len(stream); i++ {
		split, err := feedAll(t, stream[:i], stream[i:])
		if err != nil {
			t.Fatalf("offset %d: %v", i, err)
		}
		if split.Text != whole.Text || split.Done != whole.Done {
			t.Fatalf("offset %d: expected %q/%v, got %q/%v", i, whole.Text, whole.Done, split.Text, split.Done)
		}
	}
}

func TestDecodeOverlapMerge(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "prefix resend",
			chunks: []string{`{"response":"Hello"}` + "\n", `{"response":"Hello world"}` + "\n"},
			want:   "Hello world",
		},
		{
			name:   "delta",
			chunks: []string{`{"response":"Hello"}` + "\n", `{"response":" world"}` + "\n"},
			want:   "Hello world",
		},
		{
			name: "openai deltas",
			chunks: []string{
				`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n",
				`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n",
			},
			want: "Hello",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := feedAll(t, tt.chunks...)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Text != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got.Text)
			}
		})
	}
}

func TestDecodeSentinelAndComments(t *testing.T) {
	got, err := feedAll(t,
		": keep-alive\r\n",
		"event: message\r\n",
		"data: {\"choices\":[{\"message\":{\"content\":\" Hi \"}}]}\r\n",
		"data:\r\n",
		"data: [DONE]\r\n",
	)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "Hi" {
		t.Fatalf("expected %q, got %q", "Hi", got.Text)
	}
	if !got.Done {
		t.Fatalf("expected [DONE] to set done")
	}

	bare, err := feedAll(t, "[DONE]\n")
	if err != nil {
		t.Fatalf("decode bare sentinel: %v", err)
	}
	if bare.Text != "" || !bare.Done || bare.Raw != nil {
		t.Fatalf("unexpected sentinel result %#v", bare)
	}
}

func TestDecodeSkipsGarbledLines(t *testing.T) {
	got, err := feedAll(t,
		`{"response":"one"`+"\n",
		"not json at all\n",
		`[1,2,3]`+"\n",
		`{"response":"one two","done":true,"model":"m"}`+"\n",
	)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "one two" {
		t.Fatalf("expected %q, got %q", "one two", got.Text)
	}
	if got.Raw["model"] != "m" {
		t.Fatalf("expected last payload to be recorded, got %#v", got.Raw)
	}
}

func TestDecodeFlushesTrailingLine(t *testing.T) {
	got, err := feedAll(t, `{"response":"partial`, ` tail","done":true}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "partial tail" || !got.Done {
		t.Fatalf("unexpected result %#v", got)
	}
}

func TestDecodeErrorShortCircuits(t *testing.T) {
	_, err := feedAll(t,
		`{"response":"already here"}`+"\n",
		`{"error":"model not found"}`+"\n",
		`{"response":" never seen"}`+"\n",
	)
	var inBand *inBandError
	if !errors.As(err, &inBand) {
		t.Fatalf("expected in-band error, got %v", err)
	}
	if inBand.Message != "model not found" {
		t.Fatalf("unexpected message %q", inBand.Message)
	}

	_, err = feedAll(t, `{"error":{"message":"overloaded","type":"server"}}`)
	if !errors.As(err, &inBand) || inBand.Message != "overloaded" {
		t.Fatalf("expected object error to surface its message, got %v", err)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecodeStreamTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := DecodeStream(&failingReader{data: []byte(`{"response":"lost"}` + "\n"), err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestDecodeStreamNilReader(t *testing.T) {
	got, err := DecodeStream(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Text != "" || got.Raw != nil || got.Done {
		t.Fatalf("expected empty result, got %#v", got)
	}
}

func TestDecodeStreamReader(t *testing.T) {
	body := `{"response":"ab"}` + "\n" + strings.Repeat(`{"response":"c"}`+"\n", readChunkSize/8)
	got, err := DecodeStream(io.MultiReader(strings.NewReader(body), strings.NewReader(`{"done":true}`)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := "ab" + strings.Repeat("c", readChunkSize/8)
	if got.Text != want {
		t.Fatalf("expected %d chars, got %d", len(want), len(got.Text))
	}
	if !got.Done {
		t.Fatalf("expected done")
	}
}
