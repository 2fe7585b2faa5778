package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/metrics"
	"github.com/firasghr/uaemulate/worker"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Send one emulated request and print the response",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	addRequestFlags(fetchCmd)
	fetchCmd.Flags().Bool("body", false, "Print the response body")
	fetchCmd.Flags().Bool("follow", false, "Follow redirects")
	fetchCmd.Flags().IntP("repeat", "n", 1, "Send the request this many times and print a summary")
	fetchCmd.Flags().IntP("concurrency", "c", 4, "Parallel requests when repeating")
	rootCmd.AddCommand(fetchCmd)
}

// pinnedProvider always selects one profile.
type pinnedProvider struct{ p *fingerprint.Profile }

func (pp pinnedProvider) Select(context.Context) *fingerprint.Profile { return pp.p }

func runFetch(cmd *cobra.Command, args []string) error {
	db, err := loadDatabase()
	if err != nil {
		return err
	}
	req, profile, err := buildRequest(cmd, db, args[0])
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	tr, err := buildTransport(db, m)
	if err != nil {
		return err
	}
	defer tr.CloseIdleConnections()
	tr.Provider = pinnedProvider{profile}

	c, err := client.NewHTTPClient(tr, time.Duration(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	if follow, _ := cmd.Flags().GetBool("follow"); !follow {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}

	if n, _ := cmd.Flags().GetInt("repeat"); n > 1 {
		workers, _ := cmd.Flags().GetInt("concurrency")
		return repeatFetch(cmd, c, req, m, n, workers)
	}

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s (%s, %s)\n", resp.Proto, resp.Status, profile, time.Since(start).Round(time.Millisecond))
	printHeader(w, resp.Header)
	if printBody, _ := cmd.Flags().GetBool("body"); printBody {
		fmt.Fprintln(w)
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("read body: %w", err)
		}
	} else if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		fmt.Fprintf(os.Stderr, "read body: %v\n", err)
	}
	return nil
}

// repeatFetch sends n copies of req on a worker pool and prints the status
// distribution and pipeline counters.
func repeatFetch(cmd *cobra.Command, c *http.Client, req *http.Request, m *metrics.Metrics, n, workers int) error {
	ctx := req.Context()
	pool := worker.NewPool(workers)
	pool.Start(ctx)

	var mu sync.Mutex
	statuses := make(map[string]int)
	record := func(key string) {
		mu.Lock()
		statuses[key]++
		mu.Unlock()
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		err := pool.Submit(ctx, func(ctx context.Context) {
			r := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					log.Debugf("fetch: rewind body: %v", err)
					record("error")
					return
				}
				r.Body = body
			}
			resp, err := c.Do(r)
			if err != nil {
				log.Debugf("fetch: %v", err)
				record("error")
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			record(resp.Status)
		})
		if err != nil {
			break
		}
	}
	pool.Stop()
	elapsed := time.Since(start)

	w := cmd.OutOrStdout()
	keys := make([]string, 0, len(statuses))
	for k := range statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%6d  %s\n", statuses[k], k)
	}
	snap := m.Snapshot()
	fmt.Fprintf(w, "%d requests in %s on %d workers (%.1f req/s): emulated %d, decompressed %d, failed %d\n",
		snap.Total, elapsed.Round(time.Millisecond), pool.Workers(), float64(snap.Total)/elapsed.Seconds(),
		snap.Emulated, snap.Decompressed, snap.UpstreamFailed)
	return nil
}
