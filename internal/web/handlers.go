package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/thiagokokada/revlog/internal/buildinfo"
	"github.com/thiagokokada/revlog/internal/diffview"
)

func (s *Server) health(c *fiber.Ctx) error {
	changed, err := s.nav.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": buildinfo.Version(),
		"tip":     s.nav.Tip(),
		"moved":   changed,
	})
}

func (s *Server) changes(c *fiber.Ctx) error {
	page, err := s.nav.Navigate(c.UserContext(), c.Query("start"), c.QueryInt("size"), c.Query("path"))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) revision(c *fiber.Ctx) error {
	view, err := s.nav.Revision(c.UserContext(), c.Params("id"), c.QueryBool("diffs"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) scan(c *fiber.Ctx) error {
	jumps, err := s.nav.ScanRange(c.UserContext(), c.Params("id"), c.QueryInt("size"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"jumps": jumps})
}

func filePath(c *fiber.Ctx) (string, error) {
	path := c.Params("*")
	if path == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "missing file path")
	}
	return path, nil
}

func (s *Server) diff(c *fiber.Ctx) error {
	path, err := filePath(c)
	if err != nil {
		return err
	}
	chunks, err := s.nav.Diff(c.UserContext(), c.Params("id"), path)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"path": path, "headers": chunkHeaders(chunks), "chunks": chunks})
}

func (s *Server) annotate(c *fiber.Ctx) error {
	path, err := filePath(c)
	if err != nil {
		return err
	}
	lines, err := s.nav.Annotate(c.UserContext(), c.Params("id"), path)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"path": path, "lines": lines})
}

func (s *Server) files(c *fiber.Ctx) error {
	listing, err := s.nav.Files(c.UserContext(), c.Params("id"), c.Params("*"))
	if err != nil {
		return err
	}
	return c.JSON(listing)
}

func (s *Server) compare(c *fiber.Ctx) error {
	view, err := s.nav.Compare(c.UserContext(), c.Params("base"), c.Params("id"), c.QueryBool("diffs"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (s *Server) compareDiff(c *fiber.Ctx) error {
	path, err := filePath(c)
	if err != nil {
		return err
	}
	chunks, err := s.nav.DiffBetween(c.UserContext(), c.Params("base"), c.Params("id"), path)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"path": path, "headers": chunkHeaders(chunks), "chunks": chunks})
}

func (s *Server) search(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing query")
	}
	res, err := s.nav.Search(c.UserContext(), query, c.QueryInt("size"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func chunkHeaders(chunks []diffview.Chunk) []string {
	headers := make([]string, len(chunks))
	for i, chunk := range chunks {
		headers[i] = chunk.Header()
	}
	return headers
}
