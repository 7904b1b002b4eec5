package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilianp07/induction/auth"
	"github.com/kilianp07/induction/core/snapshot"
)

// HTTPSource reads depot records from the fleet records service:
//
//	GET {base}/depots/{id}/trainsets -> []snapshot.TrainsetRecord
//	GET {base}/depots/{id}           -> Depot (layout and topology)
type HTTPSource struct {
	base   string
	client *http.Client
}

var _ snapshot.Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source for baseURL. Requests carry an OAuth2
// client-credentials token when creds is enabled.
func NewHTTPSource(baseURL string, creds auth.Conf, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	if creds.Enabled() {
		hc.Transport = auth.NewClientCred(creds).Transport(nil)
	}
	return &HTTPSource{base: strings.TrimRight(baseURL, "/"), client: hc}
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: GET %s", ErrUnknownDepot, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Trainsets fetches the trainset records of a depot.
func (s *HTTPSource) Trainsets(ctx context.Context, depotID string) ([]snapshot.TrainsetRecord, error) {
	var recs []snapshot.TrainsetRecord
	if err := s.get(ctx, "/depots/"+url.PathEscape(depotID)+"/trainsets", &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Topology fetches the depot description and expands its layout.
func (s *HTTPSource) Topology(ctx context.Context, depotID string) (snapshot.Topology, error) {
	var d Depot
	if err := s.get(ctx, "/depots/"+url.PathEscape(depotID), &d); err != nil {
		return snapshot.Topology{}, err
	}
	return d.topology(), nil
}
