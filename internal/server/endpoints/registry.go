package endpoints

import "github.com/foliolabs/folio/internal/api"

// All returns every endpoint in registration order.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StartGenerationEndpoint{},
		&GenerationStatusEndpoint{},
		&ListPagesEndpoint{},
		&GetPageEndpoint{},
		&GetCoverEndpoint{},
		&UploadCoverEndpoint{},
		&DeleteCoverEndpoint{},
	}
}
