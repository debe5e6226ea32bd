// Package hibp checks passwords against the Have I Been Pwned range API
// using k-anonymity: only the first five characters of the SHA-1 digest
// leave the process, never the password or the full hash.
package hibp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.pwnedpasswords.com"

type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	return newClient(defaultBaseURL)
}

func newClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Second).
			// Padded responses hide the true bucket size from observers.
			SetHeader("Add-Padding", "true"),
	}
}

// PasswordPwned reports whether the password appears in known breach corpora.
func (c *Client) PasswordPwned(ctx context.Context, password string) (bool, error) {
	digest := sha1.Sum([]byte(password))
	hexDigest := strings.ToUpper(hex.EncodeToString(digest[:]))
	prefix, suffix := hexDigest[:5], hexDigest[5:]

	resp, err := c.http.R().SetContext(ctx).Get("/range/" + prefix)
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("range lookup returned %s", resp.Status())
	}

	// Each line is "SUFFIX:COUNT"; padding entries carry a zero count.
	for _, line := range strings.Split(resp.String(), "\n") {
		entrySuffix, count, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || !strings.EqualFold(entrySuffix, suffix) {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(count))
		if convErr != nil {
			return false, fmt.Errorf("malformed range entry %q: %w", line, convErr)
		}
		return n > 0, nil
	}
	return false, nil
}
