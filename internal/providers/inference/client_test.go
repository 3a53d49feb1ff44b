package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"charagen/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
	f.mu.Unlock()
	f.handler(w, r)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeProvider) {
	t.Helper()
	fake := &fakeProvider{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, fake
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestCreateJobSendsPayload(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": "job-1", "status": "starting"})
	})
	seed := int64(42)
	scale := 0.7
	job, err := client.CreateJob(context.Background(), JobRequest{
		Prompt:            "a cat",
		NegativePrompt:    "blurry",
		Width:             512,
		Height:            768,
		NumInferenceSteps: 30,
		GuidanceScale:     7.5,
		Scheduler:         "DPMSolverMultistep",
		Seed:              &seed,
		LoraURL:           "https://cdn.example.com/style.safetensors",
		LoraScale:         &scale,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.ID != "job-1" || job.Status != "starting" {
		t.Fatalf("job = %+v", job)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(fake.requests))
	}
	req := fake.requests[0]
	if req.method != http.MethodPost || req.path != "/v1/jobs" {
		t.Fatalf("request = %s %s", req.method, req.path)
	}
	if req.auth != "Bearer test-key" {
		t.Fatalf("authorization = %q", req.auth)
	}
	var payload map[string]any
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "sdxl-lora" {
		t.Fatalf("model = %v, want default model", payload["model"])
	}
	if payload["num_inference_steps"] != float64(30) {
		t.Fatalf("num_inference_steps = %v", payload["num_inference_steps"])
	}
	if payload["seed"] != float64(42) {
		t.Fatalf("seed = %v", payload["seed"])
	}
	if payload["lora_scale"] != 0.7 {
		t.Fatalf("lora_scale = %v", payload["lora_scale"])
	}
}

func TestCreateJobOmitsAbsentAdapter(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "job-2", "status": "processing"})
	})
	if _, err := client.CreateJob(context.Background(), JobRequest{Prompt: "x"}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(fake.requests[0].body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	for _, key := range []string{"lora_url", "lora_scale", "seed"} {
		if _, ok := payload[key]; ok {
			t.Fatalf("%s should be omitted", key)
		}
	}
}

func TestCreateJobProviderErrorCarriesDetail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "prompt flagged by safety filter"})
	})
	_, err := client.CreateJob(context.Background(), JobRequest{Prompt: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var tagged *domain.Error
	if !errors.As(err, &tagged) {
		t.Fatalf("expected tagged error, got %T", err)
	}
	if tagged.Kind != domain.KindProvider {
		t.Fatalf("kind = %s, want provider", tagged.Kind)
	}
	if tagged.Message != "prompt flagged by safety filter" {
		t.Fatalf("message = %q", tagged.Message)
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure in chain")
	}
}

func TestCreateJobNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client, err := NewClient(Options{APIKey: "k", BaseURL: base})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.CreateJob(context.Background(), JobRequest{Prompt: "x"})
	if domain.KindOf(err) != domain.KindNetwork {
		t.Fatalf("kind = %q, want network (err=%v)", domain.KindOf(err), err)
	}
}

func TestGetJobDecodesOutputShapes(t *testing.T) {
	cases := []struct {
		name       string
		payload    map[string]any
		wantOutput []string
		wantError  string
	}{
		{
			name:       "list output",
			payload:    map[string]any{"id": "j", "status": "succeeded", "output": []string{"http://x/img.png", " "}},
			wantOutput: []string{"http://x/img.png"},
		},
		{
			name:       "single output",
			payload:    map[string]any{"id": "j", "status": "succeeded", "output": "http://x/one.png"},
			wantOutput: []string{"http://x/one.png"},
		},
		{
			name:      "string error",
			payload:   map[string]any{"id": "j", "status": "failed", "error": "OOM"},
			wantError: "OOM",
		},
		{
			name:      "object error",
			payload:   map[string]any{"id": "j", "status": "failed", "error": map[string]any{"message": "CUDA out of memory"}},
			wantError: "CUDA out of memory",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tc.payload)
			})
			job, err := client.GetJob(context.Background(), "j")
			if err != nil {
				t.Fatalf("get job: %v", err)
			}
			if fake.requests[0].method != http.MethodGet || fake.requests[0].path != "/v1/jobs/j" {
				t.Fatalf("request = %s %s", fake.requests[0].method, fake.requests[0].path)
			}
			if len(job.Output) != len(tc.wantOutput) {
				t.Fatalf("output = %#v, want %#v", job.Output, tc.wantOutput)
			}
			for i := range tc.wantOutput {
				if job.Output[i] != tc.wantOutput[i] {
					t.Fatalf("output[%d] = %q, want %q", i, job.Output[i], tc.wantOutput[i])
				}
			}
			if job.Error != tc.wantError {
				t.Fatalf("error = %q, want %q", job.Error, tc.wantError)
			}
		})
	}
}

func TestGetJobMalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})
	_, err := client.GetJob(context.Background(), "j")
	if domain.KindOf(err) != domain.KindProvider {
		t.Fatalf("kind = %q, want provider", domain.KindOf(err))
	}
}

func TestGetJobEmptyBodyIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	job, err := client.GetJob(context.Background(), "j")
	if job != nil {
		t.Fatalf("job = %+v, want nil", job)
	}
	var tagged *domain.Error
	if !errors.As(err, &tagged) || tagged.Kind != domain.KindProvider {
		t.Fatalf("err = %v, want provider error", err)
	}
	if tagged.Message != "malformed inference response" {
		t.Fatalf("message = %q", tagged.Message)
	}
}

func TestCreateJobEmptyBodyIsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	_, err := client.CreateJob(context.Background(), JobRequest{Prompt: "p"})
	if domain.KindOf(err) != domain.KindProvider {
		t.Fatalf("kind = %q, want provider", domain.KindOf(err))
	}
}

func TestCancelJobAcceptsEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if err := client.CancelJob(context.Background(), "j"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestCancelJob(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "j", "status": "canceled"})
	})
	if err := client.CancelJob(context.Background(), "j"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if fake.requests[0].method != http.MethodPost || fake.requests[0].path != "/v1/jobs/j/cancel" {
		t.Fatalf("request = %s %s", fake.requests[0].method, fake.requests[0].path)
	}
	if err := client.CancelJob(context.Background(), ""); err != nil {
		t.Fatalf("empty cancel: %v", err)
	}
	if len(fake.requests) != 1 {
		t.Fatalf("empty job id must not reach the provider")
	}
}

func TestMissingAPIKey(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GetJob(context.Background(), "j")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
