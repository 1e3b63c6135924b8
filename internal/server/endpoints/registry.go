package endpoints

import (
	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DefraManager is nil unless the defra backend manages a container.
	DefraManager    *defra.DockerManager
	Backend         string
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager, Backend: cfg.Backend},

		// Book input endpoints
		&CreateInputEndpoint{},
		&ListInputsEndpoint{},
		&GetInputEndpoint{},
		&UpdateInputEndpoint{},
		&SetFieldEndpoint{},
		&ScoreEndpoint{},
		&GridEndpoint{},

		// Prompt endpoints
		&CreatePromptEndpoint{},
		&ListPromptsEndpoint{},
		&GetPromptEndpoint{},
		&UpdatePromptEndpoint{},

		// Run endpoints
		&CreateRunEndpoint{},
		&ListRunsEndpoint{},
		&GetRunEndpoint{},
		&AnnotateRunEndpoint{},
		&CancelInvocationEndpoint{},
		&RunFieldsEndpoint{},
		&MarkCorrectEndpoint{},
		&GetFieldSetEndpoint{},

		&ListModelsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
