package reply

import (
	"sync"
	"testing"
)

func TestPipelineNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{name: "reply object", payload: map[string]any{"reply": "hello"}, want: "hello"},
		{name: "raw json text", payload: `{"choices": [{"text": "hi there"}]}`, want: "hi there"},
		{name: "fenced reply", payload: `{"output": "` + "```js\\nconsole.log(1)\\n```" + `"}`, want: "console.log(1)"},
		{name: "html reply", payload: `{"text": "<p>Hello <b>world</b></p><script>steal()</script>"}`, want: "Hello world"},
		{name: "fenced html", payload: "```html\n<h1>Title</h1>\n```", want: "Title"},
		{name: "plain text", payload: "plain text", want: "plain text"},
		{name: "empty string", payload: "", want: DefaultFallback},
		{name: "nil", payload: nil, want: DefaultFallback},
		{name: "only markup", payload: "<script>alert(1)</script>", want: DefaultFallback},
		{name: "opaque object", payload: map[string]any{"status": 200}, want: `{"status":200}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.payload); got != tt.want {
				t.Fatalf("Normalize(%#v) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestPipelineCustomFallback(t *testing.T) {
	t.Parallel()

	p := Pipeline{Fallback: "nothing came back"}
	text, trace := p.Run(map[string]any{"reply": ""})
	if text != "nothing came back" {
		t.Fatalf("text = %q", text)
	}
	if !trace.Fallback {
		t.Fatal("expected trace to record fallback")
	}

	if got := (Pipeline{Fallback: "   "}).Normalize(nil); got != DefaultFallback {
		t.Fatalf("blank fallback = %q, want default", got)
	}
}

func TestPipelineNeverReturnsEmpty(t *testing.T) {
	t.Parallel()

	cyclic := map[string]any{}
	cyclic["reply"] = cyclic

	payloads := []any{
		nil, "", "   ", "```\n```", "<br>", []any{}, []any{nil}, map[string]any{},
		cyclic, map[string]any{"messages": []any{map[string]any{"text": "  "}}},
	}
	for _, payload := range payloads {
		if got := Normalize(payload); got == "" {
			t.Fatalf("Normalize(%#v) returned empty text", payload)
		}
	}
}

func TestPipelineConcurrentUse(t *testing.T) {
	t.Parallel()

	p := Pipeline{Resolver: Resolver{MaxDepth: 16}}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := p.Normalize(`{"reply": "<i>hi</i>"}`); got != "hi" {
				t.Errorf("Normalize = %q, want %q", got, "hi")
			}
		}()
	}
	wg.Wait()
}
