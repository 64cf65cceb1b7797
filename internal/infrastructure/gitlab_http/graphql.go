package gitlab_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/davarch/pipeline-monitor/internal/domain"
	"go.uber.org/zap"
)

// Combined enrichment query: open merge requests for the given source
// branches (newest first, only the first per branch is used) plus recent
// successful pipelines with their detailed status group.
const detailsQueryTemplate = `{
  project(fullPath: "%s") {
    name
    id
    jobsEnabled
    mergeRequests(sourceBranches: [%s], state: opened, sort: CREATED_DESC) {
      edges {
        node {
          sourceBranch
          webUrl
          title
          headPipeline {
            %s
          }
        }
      }
    }
    pipelines(status: SUCCESS) {
      nodes {
        id
        detailedStatus {
          group
        }
      }
    }
  }
}`

const infoQueryTemplate = `{
  project(fullPath: "%s") {
    name
    id
    jobsEnabled
  }
}`

type graphQLResponse struct {
	Data struct {
		Project *projectNode `json:"project"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type projectNode struct {
	Name          string `json:"name"`
	ID            string `json:"id"`
	JobsEnabled   bool   `json:"jobsEnabled"`
	MergeRequests struct {
		Edges []struct {
			Node mergeRequestNode `json:"node"`
		} `json:"edges"`
	} `json:"mergeRequests"`
	Pipelines struct {
		Nodes []pipelineNode `json:"nodes"`
	} `json:"pipelines"`
}

type mergeRequestNode struct {
	SourceBranch string `json:"sourceBranch"`
	WebURL       string `json:"webUrl"`
	Title        string `json:"title"`
	HeadPipeline *struct {
		Ref string `json:"ref"`
		ID  string `json:"id"`
	} `json:"headPipeline"`
}

type pipelineNode struct {
	ID             string `json:"id"`
	DetailedStatus *struct {
		Group string `json:"group"`
	} `json:"detailedStatus"`
}

// ProjectInfo runs the lightweight project query used before a mapping
// exists (name, numeric id, whether CI is enabled).
func (c *Client) ProjectInfo(ctx context.Context, host, projectPath, token string) (domain.ProjectInfo, error) {
	query := fmt.Sprintf(infoQueryTemplate, projectPath)
	project, err := c.queryProject(ctx, host, query, token)
	if err != nil {
		return domain.ProjectInfo{}, err
	}
	return domain.ProjectInfo{
		Name:        project.Name,
		ID:          numericID(project.ID),
		JobsEnabled: project.JobsEnabled,
	}, nil
}

// ProjectDetails runs the combined enrichment query for one mapping. The
// host's cached capability flag decides whether headPipeline asks for ref
// or id. GraphQL calls are never retried.
func (c *Client) ProjectDetails(ctx context.Context, m domain.Mapping, token string, sourceBranches []string) (*domain.ProjectDetails, error) {
	refField := "id"
	if c.caps.supportsRef(ctx, m.Host, c.probeRefField, token) {
		refField = "ref"
	}

	quoted := make([]string, 0, len(sourceBranches))
	for _, b := range sourceBranches {
		quoted = append(quoted, strconv.Quote(b))
	}
	query := fmt.Sprintf(detailsQueryTemplate, m.ProjectPath, strings.Join(quoted, ","), refField)

	project, err := c.queryProject(ctx, m.Host, query, token)
	if err != nil {
		return nil, err
	}

	details := &domain.ProjectDetails{
		ProjectInfo: domain.ProjectInfo{
			Name:        project.Name,
			ID:          numericID(project.ID),
			JobsEnabled: project.JobsEnabled,
		},
		StatusGroups: make(map[int64]string),
	}
	for _, edge := range project.MergeRequests.Edges {
		mr := domain.MergeRequestSummary{
			SourceBranch: edge.Node.SourceBranch,
			WebURL:       edge.Node.WebURL,
			Title:        edge.Node.Title,
		}
		if edge.Node.HeadPipeline != nil {
			mr.HeadPipelineRef = edge.Node.HeadPipeline.Ref
		}
		details.MergeRequests = append(details.MergeRequests, mr)
	}
	for _, node := range project.Pipelines.Nodes {
		id, err := strconv.ParseInt(numericID(node.ID), 10, 64)
		if err != nil || node.DetailedStatus == nil {
			continue
		}
		details.StatusGroups[id] = node.DetailedStatus.Group
	}
	return details, nil
}

func (c *Client) queryProject(ctx context.Context, host, query, token string) (*projectNode, error) {
	body, err := c.graphQL(ctx, host, query, token)
	if err != nil {
		return nil, err
	}

	graphQLURL := graphQLEndpoint(host)
	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewFailure(domain.FailureParse, graphQLURL, err)
	}
	if parsed.Data.Project == nil {
		msg := "no project in response"
		if len(parsed.Errors) > 0 {
			msg = parsed.Errors[0].Message
		}
		return nil, domain.NewFailure(domain.FailureParse, graphQLURL, fmt.Errorf("%s", msg))
	}
	return parsed.Data.Project, nil
}

// graphQL posts a query to the host's graphql endpoint. The token goes
// into the Authorization header and is never logged.
func (c *Client) graphQL(ctx context.Context, host, query, token string) ([]byte, error) {
	graphQLURL := graphQLEndpoint(host)

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, domain.NewFailure(domain.FailureParse, graphQLURL, err)
	}

	c.log.Debug("calling gitlab graphql",
		zap.String("url", graphQLURL),
		zap.Bool("authenticated", token != ""),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphQLURL, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, graphQLURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, graphQLURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureIO, graphQLURL, err)
	}
	if err := classifyStatus(resp.StatusCode, graphQLURL); err != nil {
		return nil, err
	}
	return body, nil
}

func graphQLEndpoint(host string) string {
	return strings.TrimRight(host, "/") + "/api/graphql"
}

// numericID extracts the trailing numeric segment from a gitlab global id
// such as gid://gitlab/Project/16957139.
func numericID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
