package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type jobStatus struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Result map[string]int `json:"result"`
	Error  string         `json:"error"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "API base URL")
	source := flag.String("source", "", "Source ID to import")
	wait := flag.Bool("wait", true, "Poll until the job finishes")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}
	if *source == "" {
		fmt.Println("Please provide a source ID using -source flag")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var started struct {
		JobID string `json:"job_id"`
		Poll  string `json:"poll"`
		Error string `json:"error"`
	}
	status, err := call(client, http.MethodPost, *baseURL+"/api/v1/import/"+*source, adminSecret, &started)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Response Status: %d\n", status)
	if status != http.StatusAccepted {
		fmt.Println(started.Error)
		os.Exit(1)
	}
	fmt.Printf("Job %s started\n", started.JobID)
	if !*wait {
		return
	}

	for {
		time.Sleep(2 * time.Second)
		var job jobStatus
		if _, err := call(client, http.MethodGet, *baseURL+started.Poll, adminSecret, &job); err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			os.Exit(1)
		}
		switch job.Status {
		case "running":
			continue
		case "completed":
			fmt.Printf("Completed: found=%d saved=%d errors=%d\n", job.Result["found"], job.Result["saved"], job.Result["errors"])
			return
		default:
			fmt.Printf("Job %s: %s\n", job.Status, job.Error)
			os.Exit(1)
		}
	}
}

func call(client *http.Client, method, url, secret string, out any) (int, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Admin-Secret", secret)
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
