package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the OpenAPI specification
type OpenAPIHandler struct {
	spec map[string]interface{}
}

// NewOpenAPIHandler creates a new OpenAPI handler
func NewOpenAPIHandler(version string) *OpenAPIHandler {
	return &OpenAPIHandler{
		spec: generateOpenAPISpec(version),
	}
}

// ServeSpec handles GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(h.spec)
}

// ServeYAML handles GET /openapi.yaml
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(h.spec)
	if err != nil {
		sendError(w, "Failed to render specification", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(out)
}

func ref(schema string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + schema}
}

func jsonContent(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func response(description string, schema map[string]interface{}) map[string]interface{} {
	r := map[string]interface{}{"description": description}
	if schema != nil {
		r["content"] = jsonContent(schema)
	}
	return r
}

func errorResponses(codes ...string) map[string]interface{} {
	descriptions := map[string]string{
		"400": "Invalid request",
		"404": "Not found",
		"409": "Invalid status transition",
		"429": "Rate limit exceeded",
		"503": "Dependency unavailable",
	}
	out := make(map[string]interface{}, len(codes))
	for _, c := range codes {
		out[c] = response(descriptions[c], ref("Error"))
	}
	return out
}

func operation(summary string, params []string, body string, ok string, okSchema map[string]interface{}, errs ...string) map[string]interface{} {
	responses := errorResponses(errs...)
	status := "200"
	if body != "" && (strings.HasPrefix(summary, "Create") || strings.HasPrefix(summary, "Add")) {
		status = "201"
	}
	responses[status] = response(ok, okSchema)

	op := map[string]interface{}{
		"summary":   summary,
		"responses": responses,
	}
	if len(params) > 0 {
		list := make([]map[string]interface{}, 0, len(params))
		for _, p := range params {
			list = append(list, map[string]interface{}{
				"name":     p,
				"in":       "path",
				"required": true,
				"schema":   map[string]interface{}{"type": "string"},
			})
		}
		op["parameters"] = list
	}
	if body != "" {
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content":  jsonContent(ref(body)),
		}
	}
	return op
}

func listOf(key, schema string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			key: map[string]interface{}{"type": "array", "items": ref(schema)},
		},
	}
}

func object(props map[string]string, required ...string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, typ := range props {
		switch typ {
		case "string", "integer":
			properties[name] = map[string]interface{}{"type": typ}
		case "date-time":
			properties[name] = map[string]interface{}{"type": "string", "format": "date-time"}
		case "[]integer":
			properties[name] = map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}}
		case "[]string":
			properties[name] = map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
		default:
			if item, ok := strings.CutPrefix(typ, "[]"); ok {
				properties[name] = map[string]interface{}{"type": "array", "items": ref(item)}
			} else {
				properties[name] = ref(typ)
			}
		}
	}
	o := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

// generateOpenAPISpec creates the OpenAPI 3.0 specification
func generateOpenAPISpec(version string) map[string]interface{} {
	project := []string{"project_id"}
	series := []string{"project_id", "series_id"}
	episode := []string{"project_id", "series_id", "episode_id"}
	report := []string{"project_id", "series_id", "episode_id", "report_id"}
	message := object(map[string]string{"message": "string"})

	const (
		projectsPath = "/api/projects"
		seriesPath   = projectsPath + "/{project_id}/series"
		episodesPath = seriesPath + "/{series_id}/episodes"
		researchPath = episodesPath + "/{episode_id}/research"
	)

	return map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "AiM Studio API",
			"version":     version,
			"description": "Documentary production research service",
		},
		"servers": []map[string]interface{}{
			{
				"url":         "http://localhost:8080",
				"description": "Local development server",
			},
		},
		"paths": map[string]interface{}{
			"/api/health": map[string]interface{}{
				"get": operation("Service health", nil, "", "Service is healthy", ref("ServiceHealth")),
			},
			projectsPath: map[string]interface{}{
				"get":  operation("List projects", nil, "", "Projects", listOf("projects", "Project")),
				"post": operation("Create project", nil, "ProjectInput", "Created project", ref("Project"), "400"),
			},
			projectsPath + "/{project_id}": map[string]interface{}{
				"get":    operation("Get project", project, "", "Project", ref("Project"), "404"),
				"put":    operation("Update project", project, "ProjectInput", "Updated project", ref("Project"), "400", "404"),
				"delete": operation("Delete project and its contents", project, "", "Deleted", message, "404"),
			},
			seriesPath: map[string]interface{}{
				"get":  operation("List series", project, "", "Series in order", listOf("series", "Series"), "404"),
				"post": operation("Create series", project, "SeriesInput", "Created series", ref("Series"), "400", "404"),
			},
			seriesPath + "/{series_id}": map[string]interface{}{
				"get":    operation("Get series", series, "", "Series", ref("Series"), "404"),
				"put":    operation("Update series", series, "SeriesInput", "Updated series", ref("Series"), "400", "404"),
				"delete": operation("Delete series and its contents", series, "", "Deleted", message, "404"),
			},
			episodesPath: map[string]interface{}{
				"get":  operation("List episodes", series, "", "Episodes in order", listOf("episodes", "Episode"), "404"),
				"post": operation("Create episode", series, "EpisodeInput", "Created episode", ref("Episode"), "400", "404"),
			},
			episodesPath + "/{episode_id}": map[string]interface{}{
				"get":    operation("Get episode", episode, "", "Episode", ref("Episode"), "404"),
				"put":    operation("Update episode", episode, "EpisodeInput", "Updated episode", ref("Episode"), "400", "404"),
				"delete": operation("Delete episode and its research", episode, "", "Deleted", message, "404"),
			},
			researchPath: map[string]interface{}{
				"get":  operation("List research reports, newest first", episode, "", "Reports", listOf("reports", "Report"), "404"),
				"post": operation("Create research report", episode, "CreateReportInput", "Created report", ref("Report"), "400", "404", "429"),
			},
			researchPath + "/{report_id}": map[string]interface{}{
				"get": operation("Get research report", report, "", "Report", ref("Report"), "404"),
				"put": operation("Update research report", report, "ReportUpdate", "Updated report", ref("Report"), "400", "404", "409"),
			},
			researchPath + "/{report_id}/complete": map[string]interface{}{
				"post": operation("Mark report complete", report, "", "Completed report", ref("Report"), "404"),
			},
			researchPath + "/{report_id}/link-asset": map[string]interface{}{
				"post": operation("Link an archive asset", report, "LinkedAsset", "Updated report", ref("Report"), "400", "404"),
			},
			episodesPath + "/{episode_id}/knowledge-base": map[string]interface{}{
				"get":  operation("List knowledge base", episode, "", "Entries in insertion order", listOf("entries", "KnowledgeBaseEntry"), "404"),
				"post": operation("Add knowledge base entry", episode, "NewEntry", "Created entry", ref("KnowledgeBaseEntry"), "400", "404"),
			},
			"/api/upload": map[string]interface{}{
				"post": map[string]interface{}{
					"summary": "Upload research material",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"multipart/form-data": map[string]interface{}{
								"schema": object(map[string]string{
									"file":       "string",
									"project_id": "string",
									"series_id":  "string",
									"episode_id": "string",
								}, "file"),
							},
						},
					},
					"responses": map[string]interface{}{
						"201": response("File uploaded", object(map[string]string{"message": "string", "file": "UploadedFile"})),
						"400": response("Missing or disallowed file", ref("Error")),
						"413": response("File too large", ref("Error")),
						"503": response("Storage not configured", ref("Error")),
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Error":         object(map[string]string{"error": "string"}),
				"ServiceHealth": object(map[string]string{"status": "string", "service": "string"}),
				"Producer":      object(map[string]string{"name": "string", "role": "string"}),
				"Project": object(map[string]string{
					"id": "string", "name": "string", "type": "string", "description": "string",
					"producer": "Producer", "created_at": "date-time", "updated_at": "date-time",
				}),
				"ProjectInput": object(map[string]string{
					"name": "string", "type": "string", "description": "string", "producer": "Producer",
				}, "name", "type"),
				"Series": object(map[string]string{
					"id": "string", "project_id": "string", "title": "string", "description": "string",
					"order": "integer", "created_at": "date-time", "updated_at": "date-time",
				}),
				"SeriesInput": object(map[string]string{
					"title": "string", "description": "string", "order": "integer",
				}, "title"),
				"Episode": object(map[string]string{
					"id": "string", "project_id": "string", "series_id": "string", "title": "string",
					"code": "string", "brief": "string", "current_phase": "string", "phase_progress": "integer",
					"order": "integer", "created_at": "date-time", "updated_at": "date-time",
				}),
				"EpisodeInput": object(map[string]string{
					"title": "string", "code": "string", "brief": "string",
					"current_phase": "string", "phase_progress": "integer", "order": "integer",
				}, "title"),
				"Finding": object(map[string]string{
					"name": "string", "description": "string", "source_indices": "[]integer", "confidence": "string",
				}),
				"Bibliography": object(map[string]string{"ai_generated": "[]string", "external": "[]string"}),
				"AttachedFile": object(map[string]string{"name": "string", "url": "string", "type": "string"}),
				"LinkedAsset":  object(map[string]string{"asset_id": "string", "name": "string", "url": "string", "type": "string"}),
				"Report": object(map[string]string{
					"id": "string", "title": "string", "query": "string", "type": "string", "status": "string",
					"executive_summary": "string", "key_findings": "[]Finding", "producer_notes": "string",
					"linked_assets": "[]LinkedAsset", "bibliography": "Bibliography", "attached_files": "[]AttachedFile",
					"created_at": "date-time", "updated_at": "date-time",
				}),
				"CreateReportInput": object(map[string]string{
					"query": "string", "type": "string", "title": "string", "executive_summary": "string",
					"producer_notes": "string", "attached_files": "[]AttachedFile",
				}, "query"),
				"ReportUpdate": object(map[string]string{
					"title": "string", "status": "string", "executive_summary": "string",
					"key_findings": "[]Finding", "producer_notes": "string",
				}),
				"KnowledgeBaseEntry": object(map[string]string{
					"id": "string", "fact": "string", "source_report_id": "string", "source_indices": "[]integer",
					"confidence": "string", "category": "string", "created_at": "date-time",
				}),
				"NewEntry": object(map[string]string{
					"fact": "string", "source_report_id": "string", "source_indices": "[]integer",
					"confidence": "string", "category": "string", "finding_index": "integer",
				}),
				"UploadedFile": object(map[string]string{
					"name": "string", "url": "string", "path": "string", "size": "integer",
					"content_type": "string", "hash": "string",
				}),
			},
		},
	}
}
