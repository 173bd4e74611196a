package youtube_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"github.com/garnizeh/fixbuddy/pkg/youtube"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		query, experience, want string
	}{
		{"chair wobbly leg", "beginner", "chair wobbly leg easy simple basic repair guide tutorial"},
		{"kettle", "intermediate", "kettle intermediate detailed repair guide tutorial"},
		{"washer pump", "EXPERT", "washer pump advanced professional repair guide tutorial"},
		{" lamp ", "", "lamp repair guide tutorial"},
	}
	for _, tc := range tests {
		if got := youtube.BuildQuery(tc.query, tc.experience); got != tc.want {
			t.Errorf("BuildQuery(%q,%q) = %q want %q", tc.query, tc.experience, got, tc.want)
		}
	}
}

func TestSearch_DisabledWithoutKey(t *testing.T) {
	c, err := youtube.New(context.Background(), youtube.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Enabled() {
		t.Fatalf("client without key should be disabled")
	}
	videos, err := c.Search(context.Background(), "chair", 3, "beginner")
	if err != nil || videos != nil {
		t.Fatalf("disabled search should return nil, nil; got %v, %v", videos, err)
	}
}

func TestSearch_MapsResults(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/search") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":{"videoId":"abc"},"snippet":{"title":"Fix a chair","description":"glue it","publishedAt":"2024-01-02T00:00:00Z","thumbnails":{"medium":{"url":"https://img/abc"}}}},
			{"id":{"videoId":""},"snippet":{"title":"channel hit"}},
			{"id":{"videoId":"def"},"snippet":{"title":"Chair leg","thumbnails":{"default":{"url":"https://img/def"}}}}
		]}`))
	}))
	defer srv.Close()

	c, err := youtube.New(context.Background(), youtube.Config{}, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	videos, err := c.Search(context.Background(), "wooden chair", 3, "beginner")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].URL != "https://www.youtube.com/watch?v=abc" || videos[0].ThumbnailURL != "https://img/abc" || videos[0].PublishedAt == "" {
		t.Fatalf("unexpected first video: %#v", videos[0])
	}
	if videos[1].ThumbnailURL != "https://img/def" {
		t.Fatalf("expected default thumbnail fallback, got %#v", videos[1])
	}

	for _, want := range []string{"type=video", "maxResults=3", "videoEmbeddable=true", "safeSearch=moderate", "relevanceLanguage=en", "easy+simple+basic"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearch_UpstreamErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := youtube.New(context.Background(), youtube.Config{}, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Search(context.Background(), "chair", 3, ""); err == nil {
		t.Fatalf("expected error from upstream 403")
	}
}
