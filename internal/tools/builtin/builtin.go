package builtin

import (
	"github.com/schleuse-ai/schleuse/internal/sandbox"
	"github.com/schleuse-ai/schleuse/internal/session"
	"github.com/schleuse-ai/schleuse/internal/tools"
)

// RegisterAll adds the standard tool set to the registry.
func RegisterAll(registry *tools.Registry, files *sandbox.Files, sess *session.Session) {
	registry.Register(NewReadFileTool(files, sess))
	registry.Register(NewWriteFileTool(files, sess))
	registry.Register(NewEditFileTool(files, sess))
	registry.Register(NewDeleteFileTool(files))
	registry.Register(NewListDirTool(files))
	registry.Register(NewStatTool(files))
	registry.Register(NewShellTool(files.Sandbox()))
}
