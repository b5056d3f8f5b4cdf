package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/synthvault/govault/internal/domain"
)

// PythFeed pulls the USD/synthetic-unit price from a Pyth Hermes endpoint.
// The freshness bound is enforced here, so a sleepy Hermes cache cannot feed
// the conversion engine an old price.
type PythFeed struct {
	http    *resty.Client
	priceID string
	now     func() int64
}

func NewPythFeed(baseURL, priceID string) *PythFeed {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)
	return &PythFeed{
		http:    client,
		priceID: priceID,
		now:     func() int64 { return time.Now().Unix() },
	}
}

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

func (f *PythFeed) ReadingNoOlderThan(ctx context.Context, maxAge int64) (PullReading, error) {
	var out hermesResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("ids[]", f.priceID).
		SetQueryParam("parsed", "true").
		SetResult(&out).
		Get("/v2/updates/price/latest")
	if err != nil {
		return PullReading{}, errors.Wrap(err, "oracle: hermes request")
	}
	if resp.IsError() {
		return PullReading{}, errors.Errorf("oracle: hermes http %d", resp.StatusCode())
	}
	if len(out.Parsed) == 0 {
		return PullReading{}, errors.Errorf("oracle: hermes returned no price for %s", f.priceID)
	}
	p := out.Parsed[0].Price
	mantissa, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return PullReading{}, errors.Wrapf(err, "oracle: bad hermes mantissa %q", p.Price)
	}
	reading := PullReading{Price: mantissa, Expo: p.Expo, PublishTime: p.PublishTime}
	if age := f.now() - reading.PublishTime; age > maxAge {
		return PullReading{}, &domain.StalePriceError{
			Feed:      "pull",
			Age:       age,
			MaxAge:    maxAge,
			Timestamp: reading.PublishTime,
		}
	}
	return reading, nil
}

var _ PullFeed = (*PythFeed)(nil)
