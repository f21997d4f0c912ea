//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite runs end-to-end API tests against a running MLyard
// instance
type E2ETestSuite struct {
	suite.Suite
	baseURL string
	apiKey  string
	client  *http.Client
}

func TestE2ESuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(E2ETestSuite))
}

func (s *E2ETestSuite) SetupSuite() {
	s.baseURL = os.Getenv("MLYARD_API_URL")
	if s.baseURL == "" {
		s.baseURL = "http://localhost:8080"
	}

	s.apiKey = os.Getenv("MLYARD_API_KEY")
	if s.apiKey == "" {
		s.T().Fatal("MLYARD_API_KEY environment variable is required")
	}

	s.client = &http.Client{
		Timeout: 30 * time.Second,
	}

	s.waitForAPI()
}

func (s *E2ETestSuite) waitForAPI() {
	maxAttempts := 30
	for i := 0; i < maxAttempts; i++ {
		resp, err := s.client.Get(s.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(1 * time.Second)
	}
	s.T().Fatal("API failed to become ready within timeout")
}

// ============ HELPER METHODS ============

func (s *E2ETestSuite) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-API-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return s.client.Do(req)
}

func (s *E2ETestSuite) parseResponse(resp *http.Response, v interface{}) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	if v != nil {
		err = json.Unmarshal(body, v)
		require.NoError(s.T(), err, "Failed to parse response: %s", string(body))
	}
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// ============ HEALTH CHECK TESTS ============

func (s *E2ETestSuite) TestHealthEndpoint() {
	resp, err := s.client.Get(s.baseURL + "/health")
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var result map[string]interface{}
	s.parseResponse(resp, &result)
	assert.Equal(s.T(), "healthy", result["status"])
}

// ============ EXPERIMENT AND RUN TESTS ============

func (s *E2ETestSuite) TestExperimentRunLifecycle() {
	// Create an experiment
	expName := uniqueName("e2e-exp")
	resp, err := s.doRequest("POST", "/v1/experiments", map[string]interface{}{
		"name":        expName,
		"description": "end to end lifecycle test",
		"tags":        map[string]string{"suite": "e2e"},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	var exp map[string]interface{}
	s.parseResponse(resp, &exp)
	expID := exp["id"].(string)
	require.NotEmpty(s.T(), expID)
	assert.Equal(s.T(), expName, exp["name"])

	// Start a run
	resp, err = s.doRequest("POST", "/v1/experiments/"+expID+"/runs", map[string]interface{}{
		"name": "e2e-run",
		"user": "e2e",
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	var run map[string]interface{}
	s.parseResponse(resp, &run)
	runID := run["id"].(string)
	require.NotEmpty(s.T(), runID)
	assert.Equal(s.T(), "running", run["status"])

	// Log params
	resp, err = s.doRequest("POST", "/v1/runs/"+runID+"/params", map[string]interface{}{
		"params": []map[string]string{
			{"key": "lr", "value": "0.001"},
			{"key": "batch_size", "value": "32"},
		},
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// Params are write once
	resp, err = s.doRequest("POST", "/v1/runs/"+runID+"/params", map[string]interface{}{
		"params": []map[string]string{
			{"key": "lr", "value": "0.01"},
		},
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Log metrics over a few steps
	for step := 0; step < 3; step++ {
		resp, err = s.doRequest("POST", "/v1/runs/"+runID+"/metrics", map[string]interface{}{
			"metrics": []map[string]interface{}{
				{"name": "loss", "value": 1.0 / float64(step+1), "step": step},
				{"name": "accuracy", "value": 0.5 + 0.1*float64(step), "step": step},
			},
		})
		require.NoError(s.T(), err)
		assert.Equal(s.T(), http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()
	}

	// Metric history
	resp, err = s.doRequest("GET", "/v1/runs/"+runID+"/metrics/loss", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var series map[string]interface{}
	s.parseResponse(resp, &series)
	points := series["points"].([]interface{})
	assert.Len(s.T(), points, 3)

	// Finish the run
	resp, err = s.doRequest("PUT", "/v1/runs/"+runID+"/status", map[string]interface{}{
		"status": "completed",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var finished map[string]interface{}
	s.parseResponse(resp, &finished)
	assert.Equal(s.T(), "completed", finished["status"])

	// Search runs in the experiment
	resp, err = s.doRequest("POST", "/v1/experiments/"+expID+"/runs/search", map[string]interface{}{
		"status": "completed",
		"sortBy": "start_time",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var searchResult map[string]interface{}
	s.parseResponse(resp, &searchResult)
	runs := searchResult["runs"].([]interface{})
	assert.GreaterOrEqual(s.T(), len(runs), 1)
}

// ============ MODEL REGISTRY TESTS ============

func (s *E2ETestSuite) TestModelRegistryLifecycle() {
	// Register a model
	modelName := uniqueName("e2e-model")
	resp, err := s.doRequest("POST", "/v1/models", map[string]interface{}{
		"name":        modelName,
		"description": "end to end registry test",
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	var model map[string]interface{}
	s.parseResponse(resp, &model)
	modelID := model["id"].(string)
	require.NotEmpty(s.T(), modelID)

	// A completed run to hang the version off
	expResp, err := s.doRequest("POST", "/v1/experiments", map[string]interface{}{
		"name": uniqueName("e2e-registry-exp"),
	})
	require.NoError(s.T(), err)
	var exp map[string]interface{}
	s.parseResponse(expResp, &exp)

	runResp, err := s.doRequest("POST", "/v1/experiments/"+exp["id"].(string)+"/runs", map[string]interface{}{})
	require.NoError(s.T(), err)
	var run map[string]interface{}
	s.parseResponse(runResp, &run)
	runID := run["id"].(string)

	statusResp, err := s.doRequest("PUT", "/v1/runs/"+runID+"/status", map[string]interface{}{
		"status": "completed",
	})
	require.NoError(s.T(), err)
	statusResp.Body.Close()

	// Create a version
	resp, err = s.doRequest("POST", "/v1/models/"+modelID+"/versions", map[string]interface{}{
		"runId":        runID,
		"artifactPath": "model/model.onnx",
		"inputShape":   []int{28, 28},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	var version map[string]interface{}
	s.parseResponse(resp, &version)
	assert.Equal(s.T(), float64(1), version["version"])
	assert.Equal(s.T(), "none", version["stage"])

	// Promote it to staging
	resp, err = s.doRequest("POST", fmt.Sprintf("/v1/models/%s/versions/1/stage", modelID), map[string]interface{}{
		"stage": "staging",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var promoted map[string]interface{}
	s.parseResponse(resp, &promoted)
	assert.Equal(s.T(), "staging", promoted["stage"])

	// Fetch by name
	resp, err = s.doRequest("GET", "/v1/models/by-name/"+modelName, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var byName map[string]interface{}
	s.parseResponse(resp, &byName)
	assert.Equal(s.T(), modelID, byName["id"])
}

// ============ ENDPOINT TESTS ============

func (s *E2ETestSuite) TestEndpointDeployAndTeardown() {
	// Registry setup: model, run, version
	modelResp, err := s.doRequest("POST", "/v1/models", map[string]interface{}{
		"name": uniqueName("e2e-deploy-model"),
	})
	require.NoError(s.T(), err)
	var model map[string]interface{}
	s.parseResponse(modelResp, &model)
	modelID := model["id"].(string)

	expResp, err := s.doRequest("POST", "/v1/experiments", map[string]interface{}{
		"name": uniqueName("e2e-deploy-exp"),
	})
	require.NoError(s.T(), err)
	var exp map[string]interface{}
	s.parseResponse(expResp, &exp)

	runResp, err := s.doRequest("POST", "/v1/experiments/"+exp["id"].(string)+"/runs", map[string]interface{}{})
	require.NoError(s.T(), err)
	var run map[string]interface{}
	s.parseResponse(runResp, &run)

	statusResp, err := s.doRequest("PUT", "/v1/runs/"+run["id"].(string)+"/status", map[string]interface{}{
		"status": "completed",
	})
	require.NoError(s.T(), err)
	statusResp.Body.Close()

	versionResp, err := s.doRequest("POST", "/v1/models/"+modelID+"/versions", map[string]interface{}{
		"runId":        run["id"].(string),
		"artifactPath": "model/model.onnx",
		"inputShape":   []int{4},
	})
	require.NoError(s.T(), err)
	var version map[string]interface{}
	s.parseResponse(versionResp, &version)

	// Deploy is async: the request is accepted, provisioning happens in
	// the worker
	endpointName := uniqueName("e2e-ep")
	resp, err := s.doRequest("POST", "/v1/endpoints", map[string]interface{}{
		"name":           endpointName,
		"modelVersionId": version["id"].(string),
		"scoringUrl":     "http://scorer.invalid/score",
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	var endpoint map[string]interface{}
	s.parseResponse(resp, &endpoint)
	endpointID := endpoint["id"].(string)
	assert.Equal(s.T(), "pending", endpoint["state"])

	// Sample payload is derived from the version's input shape
	resp, err = s.doRequest("GET", "/v1/endpoints/"+endpointName+"/sample-payload", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var sample map[string]interface{}
	s.parseResponse(resp, &sample)
	data := sample["data"].([]interface{})
	require.Len(s.T(), data, 1)
	assert.Len(s.T(), data[0].([]interface{}), 4)

	// Teardown is async as well
	resp, err = s.doRequest("DELETE", "/v1/endpoints/"+endpointID, nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
}
