package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tarot-oracle/internal/models"
	"tarot-oracle/internal/tarot"
)

type responseMeta struct {
	ID            string      `json:"id,omitempty"`
	Model         string      `json:"model"`
	Mode          models.Mode `json:"mode"`
	Done          bool        `json:"done"`
	DoneReason    any         `json:"done_reason,omitempty"`
	EvalCount     any         `json:"eval_count,omitempty"`
	TotalDuration any         `json:"total_duration,omitempty"`
	BaseURL       string      `json:"base_url,omitempty"`
}

type generationResponse struct {
	Response string       `json:"response"`
	Used     *usedInput   `json:"used,omitempty"`
	Meta     responseMeta `json:"meta"`
}

type usedInput struct {
	Cards []tarot.SpreadCard `json:"cards"`
}

func (s *Server) metaFor(result *models.GenerationResult) responseMeta {
	meta := responseMeta{
		ID:      result.ID,
		Model:   result.Model,
		Mode:    result.Mode,
		Done:    true,
		BaseURL: result.BaseURL,
	}
	if meta.Model == "" {
		meta.Model = s.cfg.LLM.Model
	}
	if done, ok := result.Raw["done"].(bool); ok {
		meta.Done = done
	}
	return meta
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"endpoints": s.cfg.LLM.Endpoints(),
		"model":     s.cfg.LLM.Model,
		"protocol":  s.cfg.LLM.Protocol,
	})
}

func (s *Server) handleIntro(c echo.Context) error {
	const route = "/api/psychic/intro"

	result, err := s.gen.Generate(c.Request().Context(), models.GenerationRequest{
		Model:    s.cfg.LLM.Model,
		Messages: tarot.IntroPrompt(),
	})
	if err != nil {
		return downstreamError(c, route, err)
	}

	return c.JSON(http.StatusOK, generationResponse{
		Response: result.Text,
		Meta:     s.metaFor(result),
	})
}

func (s *Server) handleSpread(c echo.Context) error {
	const route = "/api/psychic/spread"

	var req spreadRequest
	if err := decodeOptionalBody(c, &req); err != nil {
		return err
	}
	cards, err := req.normalize()
	if err != nil {
		return err
	}

	result, err := s.gen.Generate(c.Request().Context(), models.GenerationRequest{
		Model:    s.cfg.LLM.Model,
		Messages: tarot.SpreadPrompt(tarot.ResolveSpread(cards), req.Tone),
	})
	if err != nil {
		return downstreamError(c, route, err)
	}

	meta := s.metaFor(result)
	meta.DoneReason = result.Raw["done_reason"]
	meta.EvalCount = result.Raw["eval_count"]
	meta.TotalDuration = result.Raw["total_duration"]

	return c.JSON(http.StatusOK, generationResponse{
		Response: result.Text,
		Used:     &usedInput{Cards: cards},
		Meta:     meta,
	})
}

func (s *Server) handleGenerate(c echo.Context) error {
	const route = "/api/generate"

	var req generateRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	genReq, err := req.toGeneration()
	if err != nil {
		return err
	}
	if genReq.Model == "" {
		genReq.Model = s.cfg.LLM.Model
	}

	result, err := s.gen.Generate(c.Request().Context(), genReq)
	if err != nil {
		return downstreamError(c, route, err)
	}

	return c.JSON(http.StatusOK, generationResponse{
		Response: result.Text,
		Meta:     s.metaFor(result),
	})
}
