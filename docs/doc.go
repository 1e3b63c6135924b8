// Package docs provides generated OpenAPI documentation.
//
// promptlab API
//
//	@title			promptlab API
//	@version		1.0
//	@description	Prompt workbench API: book inputs, prompts, streamed runs, field comparison and scoring.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/promptlab
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http
package docs

//go:generate swag init -g doc.go -d .,../internal/server/endpoints -o ./swagger --parseDependency --parseInternal
