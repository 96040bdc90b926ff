// Package etcdclient is a small HTTP/JSON client for the etcd v2 membership
// and keys API, used to reconcile cluster membership and to hold the
// short-TTL locks the housekeeper coordinates through. The daemon this
// supervisor manages is invoked as an external child process and never
// linked in-process, so all cluster interaction happens over this wire
// client rather than an embedded store.
package etcdclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zalando-incubator/e2s/pkg/log"
)

// apiTimeout is the per-request deadline against a peer's client URL.
const apiTimeout = 3100 * time.Millisecond

const apiVersionPrefix = "/v2/"

// ErrNotFound names the "not found / not reachable" outcome of a read. The
// read operations in this package do not return it: they report that outcome
// as a zero value (nil rows, false, 0 or "") with a nil error.
var ErrNotFound = errors.New("not found or not reachable")

// MemberRow is the raw shape of one row returned by GET /v2/members.
type MemberRow struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PeerURLs   []string `json:"peerURLs"`
	ClientURLs []string `json:"clientURLs"`
}

// NumericID parses the hex member id into a uint64, as used throughout the
// data model.
func (r *MemberRow) NumericID() uint64 {
	id, _ := strconv.ParseUint(r.ID, 16, 64)
	return id
}

// Client is an HTTP/JSON client for a single peer's client URL.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New returns a Client targeting the given client URL (e.g.
// "http://10.0.0.1:2379").
func New(clientURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(clientURL, "/"),
		hc:      &http.Client{Timeout: apiTimeout},
	}
}

func (c *Client) url(endpoint string) string {
	return c.baseURL + apiVersionPrefix + endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	var reader *strings.Reader
	if body != nil {
		reader = strings.NewReader(body.Encode())
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, c.url(endpoint), reader)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build request")
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.hc.Do(req)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, v interface{}) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal request body")
	}
	req, err := http.NewRequest(http.MethodPost, c.url(endpoint), bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "cannot build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(ctx)
	return c.hc.Do(req)
}

// Members fetches the current membership list. Per the error-handling
// design, a connection failure or non-2xx response is treated as "this peer
// is not reachable" rather than an error: the caller moves on to the next
// candidate peer.
func (c *Client) Members(ctx context.Context) ([]MemberRow, error) {
	resp, err := c.do(ctx, http.MethodGet, "members", nil)
	if err != nil {
		log.Debugf("members: peer unreachable: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var out struct {
		Members []MemberRow `json:"members"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Debugf("members: cannot decode response: %v", err)
		return nil, nil
	}
	return out.Members, nil
}

// AddMember registers a new member by peer URL. A non-201 response or
// network failure is a hard failure: the caller's tick aborts.
func (c *Client) AddMember(ctx context.Context, peerURL string) (*MemberRow, error) {
	resp, err := c.postJSON(ctx, "members", map[string][]string{"peerURLs": {peerURL}})
	if err != nil {
		return nil, errors.Wrap(err, "cannot add member")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("add member: unexpected status %d", resp.StatusCode)
	}
	var row MemberRow
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return nil, errors.Wrap(err, "cannot decode add-member response")
	}
	return &row, nil
}

// RemoveMember deletes a member by id. A non-204 response or network
// failure is a hard failure.
func (c *Client) RemoveMember(ctx context.Context, id uint64) error {
	endpoint := fmt.Sprintf("members/%x", id)
	resp, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "cannot remove member")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("remove member: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// IsLeader reports whether the peer this client targets currently considers
// itself the cluster leader.
func (c *Client) IsLeader(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "stats/leader", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Leader returns the leader id this peer reports in its own self stats, or 0
// when unknown.
func (c *Client) Leader(ctx context.Context) uint64 {
	resp, err := c.do(ctx, http.MethodGet, "stats/self", nil)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}
	var out struct {
		LeaderInfo struct {
			Leader string `json:"leader"`
		} `json:"leaderInfo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0
	}
	id, _ := strconv.ParseUint(out.LeaderInfo.Leader, 16, 64)
	return id
}

// Version returns the cluster-wide etcd version string reported by
// GET /version, or "" when unavailable.
func (c *Client) Version(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return ""
	}
	resp, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var out struct {
		EtcdCluster string `json:"etcdcluster"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	return out.EtcdCluster
}

// AcquireLock attempts to create the given key with prevExist=false and the
// given ttl (seconds), the compare-and-swap primitive used for both
// _self_maintenance_lock and _upgrade_lock. It reports whether the lock was
// acquired; a 412 Precondition Failed (lock already held) is not an error,
// just a false result.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl int, value string) (bool, error) {
	body := url.Values{}
	body.Set("value", value)
	body.Set("ttl", strconv.Itoa(ttl))
	body.Set("prevExist", "false")
	resp, err := c.do(ctx, http.MethodPut, "keys/"+key, body)
	if err != nil {
		return false, errors.Wrapf(err, "cannot acquire lock %q", key)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return true, nil
	case http.StatusPreconditionFailed:
		return false, nil
	default:
		return false, nil
	}
}

// ReleaseLock deletes the given lock key. Failures are not propagated: the
// lock will expire by TTL regardless.
func (c *Client) ReleaseLock(ctx context.Context, key string) {
	if _, err := c.do(ctx, http.MethodDelete, "keys/"+key, nil); err != nil {
		log.Debugf("release lock %q: %v", key, err)
	}
}

// LockHeld reports whether the given lock key is currently set.
func (c *Client) LockHeld(ctx context.Context, key string) bool {
	resp, err := c.do(ctx, http.MethodGet, "keys/"+key, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
