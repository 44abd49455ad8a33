package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/striezel/botvinnik-sub001/internal/matrix"
	"github.com/striezel/botvinnik-sub001/pkg/log"
)

const (
	defaultXkcdBaseURL = "https://xkcd.com"

	// latestComicTTL controls how long the cached latest comic number is
	// trusted before the next "random or latest" request refreshes it.
	latestComicTTL = time.Hour

	maxComicImageSize = 8 << 20
)

// Uploader is the media upload contract the plugin consumes. A failed
// upload is recoverable: the reply falls back to the external image URL.
type Uploader interface {
	UploadMedia(data []byte, contentType, filename string) (string, error)
}

// Xkcd fetches comics from xkcd.com and re-hosts the image on the
// homeserver when an uploader is available.
type Xkcd struct {
	baseURL    string
	httpClient *http.Client
	uploader   Uploader

	mu            sync.Mutex
	rng           *rand.Rand
	latest        int
	latestFetched time.Time
}

// NewXkcd creates the plugin. uploader may be nil, in which case replies
// always reference the external image URL.
func NewXkcd(uploader Uploader) *Xkcd {
	return &Xkcd{
		baseURL:    defaultXkcdBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		uploader:   uploader,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type comicInfo struct {
	Num       int    `json:"num"`
	Title     string `json:"title"`
	SafeTitle string `json:"safe_title"`
	Img       string `json:"img"`
	Alt       string `json:"alt"`
}

func (x *Xkcd) Commands() []string {
	return []string{"xkcd"}
}

func (x *Xkcd) Handle(ctx context.Context, _, message, _, _ string, _ time.Time) matrix.Message {
	var (
		comic *comicInfo
		err   error
	)

	if arg := args(message); arg == "random" {
		comic, err = x.fetchRandom(ctx)
	} else if arg != "" {
		num, convErr := strconv.Atoi(arg)
		if convErr != nil || num < 1 {
			return matrix.Message{Body: "Usage: xkcd [comic number|random]"}
		}
		comic, err = x.fetchComic(ctx, num)
	} else {
		comic, err = x.fetchLatest(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("xkcd fetch failed")
		return matrix.Message{Body: fmt.Sprintf("Could not fetch the comic: %v", err)}
	}

	title := comic.Title
	if title == "" {
		// Some comics only carry a safe_title.
		title = comic.SafeTitle
	}

	imageRef := comic.Img
	if x.uploader != nil {
		if uri, upErr := x.rehostImage(ctx, comic.Img); upErr == nil {
			imageRef = uri
		} else {
			log.WithError(upErr).WithField("url", comic.Img).Warn("image upload failed, using external URL")
		}
	}

	return matrix.Message{
		Body: fmt.Sprintf("xkcd #%d: %s\n%s\n%s", comic.Num, title, imageRef, comic.Alt),
		FormattedBody: fmt.Sprintf("<strong>xkcd #%d: %s</strong><br><img src=\"%s\" alt=\"%s\"><br><em>%s</em>",
			comic.Num, html.EscapeString(title), html.EscapeString(imageRef),
			html.EscapeString(title), html.EscapeString(comic.Alt)),
	}
}

func (x *Xkcd) fetchLatest(ctx context.Context) (*comicInfo, error) {
	comic, err := x.fetchComic(ctx, 0)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	x.latest = comic.Num
	x.latestFetched = time.Now()
	x.mu.Unlock()

	return comic, nil
}

// LatestKnown returns the cached latest comic number, refreshing it when
// the cache is stale or empty.
func (x *Xkcd) LatestKnown(ctx context.Context) (int, error) {
	x.mu.Lock()
	if x.latest > 0 && time.Since(x.latestFetched) < latestComicTTL {
		latest := x.latest
		x.mu.Unlock()
		return latest, nil
	}
	x.mu.Unlock()

	comic, err := x.fetchLatest(ctx)
	if err != nil {
		return 0, err
	}
	return comic.Num, nil
}

// fetchRandom picks a uniformly random comic between 1 and the latest
// known number. The latest number comes from the TTL cache, so repeated
// random requests cost one metadata fetch each, not two.
func (x *Xkcd) fetchRandom(ctx context.Context) (*comicInfo, error) {
	latest, err := x.LatestKnown(ctx)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	num := 1 + x.rng.Intn(latest)
	x.mu.Unlock()

	return x.fetchComic(ctx, num)
}

// fetchComic retrieves metadata for one comic; num 0 means the latest.
func (x *Xkcd) fetchComic(ctx context.Context, num int) (*comicInfo, error) {
	endpoint := x.baseURL + "/info.0.json"
	if num > 0 {
		endpoint = fmt.Sprintf("%s/%d/info.0.json", x.baseURL, num)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create comic request: %w", err)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("comic %d does not exist", num)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comic request failed: HTTP %d", resp.StatusCode)
	}

	var comic comicInfo
	if err := json.NewDecoder(resp.Body).Decode(&comic); err != nil {
		return nil, fmt.Errorf("failed to parse comic metadata: %w", err)
	}
	return &comic, nil
}

// rehostImage downloads the comic image and uploads it to the media
// repository, returning the mxc URI.
func (x *Xkcd) rehostImage(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxComicImageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	return x.uploader.UploadMedia(data, contentType, "comic.png")
}

func (x *Xkcd) HelpText(string) string {
	return "shows an xkcd comic, the latest, by number or a random one"
}

func (x *Xkcd) AllowDeactivation(string) bool {
	return true
}
