package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"
)

type service struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type status struct {
	Logs []struct {
		State     string  `json:"state"`
		StartTime string  `json:"start_time"`
		EndTime   *string `json:"end_time"`
	} `json:"logs"`
}

type hourlyPing struct {
	Time   string  `json:"time"`
	PingMS float64 `json:"ping_ms"`
}

type pings struct {
	Pings []hourlyPing `json:"pings"`
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8000"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	var services []service
	if err := getJSON(client, api+"/api/services", &services); err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	if len(services) == 0 {
		fmt.Println("No services configured. Set URLS on the API.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSINCE\tMEAN OF HOURLY PING AVGS (24h)\tURL")
	for _, s := range services {
		state, since := "UNKNOWN", "-"
		var st status
		if err := getJSON(client, fmt.Sprintf("%s/api/status/%d?hours=24", api, s.ID), &st); err == nil && len(st.Logs) > 0 {
			last := st.Logs[len(st.Logs)-1]
			if last.EndTime == nil {
				state, since = last.State, last.StartTime
			}
		}

		avg := "-"
		var p pings
		if err := getJSON(client, fmt.Sprintf("%s/api/ping/%d?hours=24", api, s.ID), &p); err == nil {
			avg = formatHourlyMean(p.Pings)
		}

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, state, since, avg, s.URL)
	}
	_ = w.Flush()
}

// formatHourlyMean averages the hourly bucket averages. Every hour counts
// once regardless of how many samples it holds; the API exposes no counts.
func formatHourlyMean(buckets []hourlyPing) string {
	if len(buckets) == 0 {
		return "-"
	}
	sum := 0.0
	for _, b := range buckets {
		sum += b.PingMS
	}
	return fmt.Sprintf("%.1f ms", sum/float64(len(buckets)))
}

func getJSON(c *http.Client, url string, v any) error {
	resp, err := c.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
