// File path: internal/api/config_handler.go
package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/auditlens/auditlens/internal/tasks"
)

type taskInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	RequiresImages bool   `json:"requires_images"`
}

// handleConfig reports the effective runtime configuration and the task
// catalog so clients can discover what the service will plan with.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	providerName := "none"
	if s.provider != nil {
		providerName = s.provider.Name()
	}
	catalog := tasks.Catalog()
	infos := make([]taskInfo, 0, len(catalog))
	for _, task := range catalog {
		infos = append(infos, taskInfo{
			ID:             task.ID,
			Name:           task.Name,
			Description:    task.Description,
			RequiresImages: task.RequiresImages,
		})
	}
	chatModel := strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL"))
	if chatModel == "" {
		chatModel = "gpt-4o"
	}
	visionModel := strings.TrimSpace(os.Getenv("OPENAI_VISION_MODEL"))
	if visionModel == "" {
		visionModel = chatModel
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":          providerName,
		"chat_model":        chatModel,
		"vision_model":      visionModel,
		"tasks":             infos,
		"max_refine":        s.cfg.MaxRefine,
		"workers":           s.cfg.Workers,
		"max_request_bytes": s.cfg.MaxRequestBytes,
	})
}
