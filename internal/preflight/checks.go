package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"podmirror/internal/config"
	"podmirror/internal/deps"
)

// CheckYouTubeAPI verifies that the Data API is reachable, the key is valid,
// and the playlist exists. It makes a single playlists.list call (1 quota
// unit) with a 10-second timeout.
func CheckYouTubeAPI(ctx context.Context, baseURL, apiKey, playlistID string) Result {
	const name = "YouTube Data API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}
	if strings.TrimSpace(playlistID) == "" {
		return Result{Name: name, Detail: "missing playlist id"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("part", "id")
	params.Set("id", strings.TrimSpace(playlistID))
	params.Set("key", strings.TrimSpace(apiKey))
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/playlists?"+params.Encode(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if !strings.Contains(string(body), strings.TrimSpace(playlistID)) {
			return Result{Name: name, Detail: "playlist not found"}
		}
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusBadRequest, http.StatusUnauthorized:
		return Result{Name: name, Detail: "request rejected (invalid api key?)"}
	case http.StatusForbidden:
		return Result{Name: name, Detail: "forbidden (quota exceeded or API disabled)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates all binaries the given config needs. RunAll and
// the status output share it so the requirements list lives in one place.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	return append(statuses, deps.CheckFFmpegForYTDLP(cfg.Acquire.YTDLPBinary))
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return err.Error()
}
