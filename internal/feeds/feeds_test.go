package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
)

var quiet = log.New(io.Discard, "", 0)

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item><title>児童虐待の疑いで父親を逮捕</title><link>https://www3.nhk.or.jp/news/html/a.html</link>
<description>&lt;p&gt;県警は&lt;b&gt;傷害&lt;/b&gt;の疑いで&lt;/p&gt;</description>
<pubDate>Tue, 07 May 2024 10:00:00 +0900</pubDate></item>
<item><title>天気</title><link>https://ads.example.com/x</link><description>晴れ</description></item>
<item><title>リンクなし</title><description>no link</description></item>
</channel></rss>`

func testClient() *httpclient.Client {
	return httpclient.New(2*time.Second, 0, time.Millisecond, 0)
}

type stubGen struct {
	out string
	err error
}

func (s stubGen) Generate(ctx context.Context, prompt string) (string, error) { return s.out, s.err }

type failing struct{}

func (failing) Name() string { return "broken" }
func (failing) Fetch(ctx context.Context) ([]models.RawItem, error) {
	return nil, errors.New("boom")
}

func TestRSSFetchNormalizesAndAppliesPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssXML))
	}))
	defer srv.Close()

	reg, err := NewRegistry(config.FeedsConfig{
		RSS: []config.RSSFeedConfig{{Name: "nhk", URL: srv.URL}},
		Policy: config.SourcePolicyConfig{
			Block:  []string{"example.com"},
			Labels: map[string]string{"nhk.or.jp": "NHK"},
		},
	}, nil, quiet)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	res := reg.FetchAll(context.Background(), []string{"nhk"})
	if len(res) != 1 || res[0].Err != nil {
		t.Fatalf("unexpected results: %+v", res)
	}
	items := res[0].Items
	if len(items) != 1 {
		t.Fatalf("expected blocked and linkless items dropped, got %+v", items)
	}
	it := items[0]
	if it.Summary != "県警は傷害の疑いで" {
		t.Fatalf("expected markup stripped, got %q", it.Summary)
	}
	if it.Source != "NHK" {
		t.Fatalf("expected label from host policy, got %q", it.Source)
	}
	if it.PublishedDate != "2024-05-07" {
		t.Fatalf("unexpected date %q", it.PublishedDate)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	reg, err := NewRegistry(config.FeedsConfig{
		Generated: []config.GeneratedConfig{{Name: "gen", Source: "AI"}},
	}, stubGen{out: "以下の通りです\n```json\n[{\"url\":\"https://example.jp/1\",\"title\":\"事件\",\"summary\":\"概要\",\"date\":\"2024-04-01\",\"court\":\"東京地裁\",\"tags\":[\"虐待\"]}]\n```"}, quiet)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg.Register(failing{})

	res := reg.FetchAll(context.Background(), []string{"broken", "gen", "missing"})
	if len(res) != 3 {
		t.Fatalf("expected one result per name, got %d", len(res))
	}
	if res[0].Err == nil || res[2].Err == nil {
		t.Fatalf("expected failing and unknown sources to report errors")
	}
	if res[1].Err != nil || len(res[1].Items) != 1 {
		t.Fatalf("expected generated items, got %+v", res[1])
	}
	got := res[1].Items[0]
	if got.Source != "AI" || got.Court != "東京地裁" || got.PublishedDate != "2024-04-01" || len(got.Tags) != 1 {
		t.Fatalf("unexpected generated item %+v", got)
	}
}

func TestGeneratedRejectsProse(t *testing.T) {
	g := NewGenerated(config.GeneratedConfig{Name: "gen"}, stubGen{out: "該当する事件は見つかりませんでした"})
	if _, err := g.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for output without json")
	}
}

func TestGeneratedNeedsGenerator(t *testing.T) {
	_, err := NewRegistry(config.FeedsConfig{Generated: []config.GeneratedConfig{{Name: "gen"}}}, nil, quiet)
	if err == nil {
		t.Fatalf("expected error without generator")
	}
}

func TestDuplicateSourceName(t *testing.T) {
	_, err := NewRegistry(config.FeedsConfig{
		RSS:     []config.RSSFeedConfig{{Name: "a", URL: "http://x"}},
		YouTube: []config.YouTubeConfig{{Name: "a"}},
	}, nil, quiet)
	if err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestYouTubeSkipsPrivateVideos(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "UC1" {
			t.Errorf("unexpected channel %q", r.URL.Query().Get("id"))
		}
		_, _ = w.Write([]byte(`{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU1"}}}]}`))
	})
	mux.HandleFunc("/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("playlistId") != "UU1" {
			t.Errorf("unexpected playlist %q", r.URL.Query().Get("playlistId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{
			map[string]any{"snippet": map[string]any{
				"title": "児童相談所の対応", "description": "解説", "publishedAt": "2024-03-01T12:00:00Z",
				"channelTitle": "ニュース", "resourceId": map[string]string{"videoId": "abc"},
				"thumbnails": map[string]any{"default": map[string]string{"url": "https://i.ytimg.com/d.jpg"}},
			}},
			map[string]any{"snippet": map[string]any{"title": "Private video", "resourceId": map[string]string{"videoId": "p"}}},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	y := NewYouTube(config.YouTubeConfig{Name: "yt", APIKey: "k", ChannelID: "UC1"}, testClient())
	y.endpoint = srv.URL
	items, err := y.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected private video skipped, got %+v", items)
	}
	if items[0].Link != "https://www.youtube.com/watch?v=abc" || items[0].Thumbnail != "https://i.ytimg.com/d.jpg" {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if items[0].PublishedDate != "2024-03-01" {
		t.Fatalf("unexpected date %q", items[0].PublishedDate)
	}
}

func TestNewsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"status":"error","message":"apiKeyInvalid"}`))
	}))
	defer srv.Close()

	n := NewNewsAPI(config.NewsAPIConfig{Name: "n", APIKey: "k", Endpoint: srv.URL, Query: "虐待"}, testClient())
	if _, err := n.Fetch(context.Background()); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestFormatDateFallsBack(t *testing.T) {
	upd := time.Date(2024, 1, 2, 23, 0, 0, 0, time.FixedZone("JST", 9*3600))
	if got := formatDate(nil, &upd); got != "2024-01-02" {
		t.Fatalf("expected updated date in UTC, got %q", got)
	}
	if got := formatDate(nil); got != time.Now().UTC().Format(DateLayout) {
		t.Fatalf("expected today, got %q", got)
	}
}
