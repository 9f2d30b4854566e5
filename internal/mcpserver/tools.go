package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/parts"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.createBoxTool(),
		s.createCylinderTool(),
		s.createFlangeTool(),
		s.exportModelTool(),
		s.listModelsTool(),
		s.generateModelTool(),
	)
}

func nameOption() mcplib.ToolOption {
	return mcplib.WithString("name",
		mcplib.Description("Name to store the solid under; generated when omitted"),
	)
}

func dimension(name, desc string) mcplib.ToolOption {
	return mcplib.WithNumber(name, mcplib.Required(), mcplib.Min(0), mcplib.Description(desc))
}

func (s *Server) createBoxTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_box",
		mcplib.WithDescription("Create a box centred on the origin"),
		nameOption(),
		dimension("length", "Size along X in mm"),
		dimension("width", "Size along Y in mm"),
		dimension("height", "Size along Z in mm"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateBox}
}

func (s *Server) createCylinderTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_cylinder",
		mcplib.WithDescription("Create a cylinder standing on the XY plane"),
		nameOption(),
		dimension("radius", "Radius in mm"),
		dimension("height", "Height in mm"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateCylinder}
}

func (s *Server) createFlangeTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_flange",
		mcplib.WithDescription("Create a flat flange with a centre bore and bolt holes on a circle"),
		nameOption(),
		dimension("outer_diameter", "Outer diameter in mm"),
		dimension("inner_diameter", "Bore diameter in mm"),
		dimension("thickness", "Thickness in mm"),
		mcplib.WithNumber("bolt_circle_diameter", mcplib.Description("Bolt circle diameter in mm; midway between bore and rim when omitted")),
		mcplib.WithNumber("bolt_hole_diameter", mcplib.Description("Bolt hole diameter in mm")),
		mcplib.WithNumber("bolt_count", mcplib.DefaultNumber(parts.DefaultBoltCount), mcplib.Description("Number of bolt holes")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateFlange}
}

func (s *Server) exportModelTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("export_model",
		mcplib.WithDescription("Export a named solid to a STEP or STL file"),
		mcplib.WithString("name", mcplib.Required(), mcplib.Description("Name of a solid created earlier")),
		mcplib.WithString("format", mcplib.Enum("STEP", "STL"), mcplib.Description("Export format; the server default when omitted")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleExportModel}
}

func (s *Server) listModelsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_models",
		mcplib.WithDescription("List solids built in this session and exported model files"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListModels}
}

func (s *Server) generateModelTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("generate_model",
		mcplib.WithDescription("Generate a 3D model from a text description"),
		mcplib.WithString("prompt", mcplib.Required(), mcplib.Description("What to build, e.g. 'a bracket with two mounting holes'")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGenerateModel}
}

// created is the result of a create_* tool.
type created struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Spec        parts.Spec `json:"spec"`
	Size        [3]float64 `json:"size"`
}

func (s *Server) build(name string, spec parts.Spec) *mcplib.CallToolResult {
	solid, err := spec.Build()
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to build "+string(spec.Kind), err)
	}
	stored := s.deps.Registry.Put(name, spec, solid)
	size := solid.BoundingBox().Size()
	zap.L().Debug("mcp: solid created", zap.String("name", stored), zap.String("spec", spec.Describe()))
	return toolResultJSON(created{
		Name:        stored,
		Description: spec.Describe(),
		Spec:        spec,
		Size:        [3]float64{size.X, size.Y, size.Z},
	})
}

// requireFloats reads required numeric arguments in order.
func requireFloats(req mcplib.CallToolRequest, keys ...string) ([]float64, error) { //nolint:gocritic // hugeParam: mcp-go request type
	out := make([]float64, len(keys))
	for i, k := range keys {
		v, err := req.RequireFloat(k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) handleCreateBox(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, err := requireFloats(req, "length", "width", "height")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	spec := parts.Spec{Kind: parts.KindBox, Length: v[0], Width: v[1], Height: v[2]}
	return s.build(req.GetString("name", ""), spec), nil
}

func (s *Server) handleCreateCylinder(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, err := requireFloats(req, "radius", "height")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	spec := parts.Spec{Kind: parts.KindCylinder, Radius: v[0], Height: v[1]}
	return s.build(req.GetString("name", ""), spec), nil
}

func (s *Server) handleCreateFlange(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	v, err := requireFloats(req, "outer_diameter", "inner_diameter", "thickness")
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	od, id := v[0], v[1]
	spec := parts.Spec{
		Kind:               parts.KindFlange,
		OuterDiameter:      od,
		InnerDiameter:      id,
		Thickness:          v[2],
		BoltCircleDiameter: req.GetFloat("bolt_circle_diameter", (od+id)/2),
		BoltCount:          req.GetInt("bolt_count", parts.DefaultBoltCount),
	}
	spec.BoltHoleDiameter = req.GetFloat("bolt_hole_diameter", (od-id)/8)
	return s.build(req.GetString("name", ""), spec), nil
}

func (s *Server) handleExportModel(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Models == nil {
		return mcplib.NewToolResultError("model store not configured"), nil
	}
	name, err := req.RequireString("name")
	if err != nil || name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	entry, ok := s.deps.Registry.Get(name)
	if !ok {
		return mcplib.NewToolResultError(fmt.Sprintf("no solid named %q; create one first", name)), nil
	}
	format := req.GetString("format", s.cfg.Format)
	m, err := parts.ExportSolid(entry.Solid, s.deps.Models, format)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to export %s", name), err), nil
	}
	zap.L().Info("mcp: model exported", zap.String("name", name), zap.String("path", m.Path))
	return toolResultJSON(m), nil
}

// listing is the result of list_models.
type listing struct {
	Session []Summary              `json:"session"`
	Files   []model.GeneratedModel `json:"files"`
}

func (s *Server) handleListModels(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	out := listing{Session: s.deps.Registry.List(), Files: []model.GeneratedModel{}}
	if s.deps.Models != nil {
		files, err := s.deps.Models.List()
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to list model files", err), nil
		}
		out.Files = files
	}
	return toolResultJSON(out), nil
}

func (s *Server) handleGenerateModel(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Generator == nil {
		return mcplib.NewToolResultError("generation not configured"), nil
	}
	prompt, err := req.RequireString("prompt")
	if err != nil || prompt == "" {
		return mcplib.NewToolResultError("prompt is required"), nil
	}
	res := s.deps.Generator.Generate(ctx, prompt)
	out := toolResultJSON(res)
	out.IsError = !res.Success
	return out, nil
}

func toolResultJSON(v any) *mcplib.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err)
	}
	return mcplib.NewToolResultText(string(data))
}
