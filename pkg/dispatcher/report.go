package dispatcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/podexec/pkg/api"
)

const missingKeyReport = "Error: RunPod API key not set. Please set the RUNPOD_API_KEY environment variable."

// FormatExecution renders a finished job for the tool caller.
func FormatExecution(job *api.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code execution completed in %.2f seconds (delayed %.2f seconds).\n\n",
		float64(job.ExecutionTime)/1000, float64(job.DelayTime)/1000)

	out := api.Completed("", "", api.MissingReturnCode)
	if job.Output != nil {
		out = *job.Output
	}

	if out.Stdout != "" {
		b.WriteString("--- OUTPUT ---\n")
		b.WriteString(out.Stdout)
		b.WriteString("\n")
	}
	if out.Stderr != "" {
		b.WriteString("--- ERRORS ---\n")
		b.WriteString(out.Stderr)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "--- RETURN CODE ---\n%d", out.ExitCode)
	return b.String()
}

// FormatError renders a failed execution round trip. budget is the
// configured maximum execution time quoted in timeout reports.
func FormatError(err error, budget time.Duration) string {
	e := Classify(err)
	switch e.Kind {
	case KindConfig:
		return missingKeyReport
	case KindTimeout:
		return fmt.Sprintf("Error: Request timed out after %s seconds. Your code may be taking too long to execute.", seconds(budget))
	case KindExecution:
		return "Error: Remote execution failed: " + e.cause()
	case KindTransport:
		if e.StatusCode != 0 {
			return fmt.Sprintf("Error: Request failed with status code %d.\n%s", e.StatusCode, e.Body)
		}
	}
	return "Error: An exception occurred while executing code: " + e.cause()
}

// FormatHealth renders a successful health check. The remote status is
// shown verbatim.
func FormatHealth(endpointID string, health *api.HealthResponse, budget time.Duration) string {
	status := UnknownStatus
	if health != nil {
		status = health.Status
	}
	return fmt.Sprintf("\nRunPod Status:\n- Endpoint ID: %s\n- Status: %s\n- API Connection: Successful\n- Max Execution Time: %s seconds\n",
		endpointID, status, seconds(budget))
}

// FormatHealthError renders a failed health check.
func FormatHealthError(err error) string {
	e := Classify(err)
	switch {
	case e.Kind == KindConfig:
		return missingKeyReport
	case e.Kind == KindTransport && e.StatusCode != 0:
		return fmt.Sprintf("Error: Health check failed with status code %d.\n%s", e.StatusCode, e.Body)
	}
	return "Error: An exception occurred while checking RunPod status: " + e.cause()
}

// seconds formats d as a plain number of seconds: "30", "0.5".
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
