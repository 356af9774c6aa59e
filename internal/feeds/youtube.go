package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
)

const youtubeAPI = "https://www.googleapis.com/youtube/v3"

// YouTube lists the latest uploads of a channel.
type YouTube struct {
	cfg      config.YouTubeConfig
	endpoint string
	http     *httpclient.Client
}

func NewYouTube(cfg config.YouTubeConfig, hc *httpclient.Client) *YouTube {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &YouTube{cfg: cfg, endpoint: youtubeAPI, http: hc}
}

func (y *YouTube) Name() string { return y.cfg.Name }

func (y *YouTube) Fetch(ctx context.Context) ([]models.RawItem, error) {
	playlist, err := y.uploadsPlaylist(ctx)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Items []struct {
			Snippet struct {
				Title        string `json:"title"`
				Description  string `json:"description"`
				PublishedAt  string `json:"publishedAt"`
				ChannelTitle string `json:"channelTitle"`
				Thumbnails   map[string]struct {
					URL string `json:"url"`
				} `json:"thumbnails"`
				ResourceID struct {
					VideoID string `json:"videoId"`
				} `json:"resourceId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	q := url.Values{
		"key":        {y.cfg.APIKey},
		"playlistId": {playlist},
		"part":       {"snippet"},
		"maxResults": {fmt.Sprint(y.cfg.MaxResults)},
	}
	if err := y.http.DoJSON(ctx, "GET", y.endpoint+"/playlistItems?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	items := make([]models.RawItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		sn := it.Snippet
		if sn.Title == "Private video" || sn.Title == "Deleted video" || sn.ResourceID.VideoID == "" {
			continue
		}
		thumb := sn.Thumbnails["medium"].URL
		if thumb == "" {
			thumb = sn.Thumbnails["default"].URL
		}
		var published *time.Time
		if ts, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
			published = &ts
		}
		items = append(items, models.RawItem{
			Title:         sn.Title,
			Summary:       sn.Description,
			Link:          "https://www.youtube.com/watch?v=" + url.QueryEscape(sn.ResourceID.VideoID),
			PublishedDate: formatDate(published),
			Source:        sn.ChannelTitle,
			Thumbnail:     thumb,
		})
	}
	return items, nil
}

func (y *YouTube) uploadsPlaylist(ctx context.Context) (string, error) {
	var resp struct {
		Items []struct {
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	q := url.Values{"key": {y.cfg.APIKey}, "id": {y.cfg.ChannelID}, "part": {"contentDetails"}}
	if err := y.http.DoJSON(ctx, "GET", y.endpoint+"/channels?"+q.Encode(), nil, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return "", errors.New("youtube: uploads playlist not found")
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}
