// Package api provides the REST API server for midiseq
package api

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/midiseq/pkg/midifile"
	"github.com/james-see/midiseq/pkg/transport"
)

// @title midiseq API
// @version 1.0
// @description API for inspecting Standard MIDI Files
// @host localhost:8080
// @BasePath /api/v1

const defaultEventLimit = 1000

// maxUploadSize is the largest midi file accepted by the upload endpoints.
var maxUploadSize int64 = 32 << 20

// NewRouter returns the API routes without starting a server.
func NewRouter() *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = maxUploadSize

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.GET("/ports", listPorts)
		v1.POST("/inspect", handleInspect)
		v1.POST("/length", handleLength)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	return NewRouter().Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "midiseq",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the accepted file extensions and header variants
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"extensions": midifile.Extensions,
		"content": []midifile.Content{midifile.ContentSMF, midifile.ContentMacBinarySMF},
	})
}

// listPorts godoc
// @Summary List MIDI output ports
// @Description Returns the output ports of the server's MIDI driver
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]transport.Port
// @Router /api/v1/ports [get]
func listPorts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ports": transport.ListPorts()})
}

// TrackInfo describes one track chunk.
type TrackInfo struct {
	Index  int    `json:"index"`
	Bytes  int64  `json:"bytes"`
	Events int    `json:"events"`
	Name   string `json:"name,omitempty"`
}

// EventInfo is the JSON form of an event.
type EventInfo struct {
	Name        string `json:"name"`
	Status      int    `json:"status"`
	Channel     *uint8 `json:"channel,omitempty"`
	DeltaTicks  uint32 `json:"delta_ticks"`
	DeltaUS     int64  `json:"delta_us"`
	TimestampUS int64  `json:"timestamp_us"`
	Data        string `json:"data"`
	Text        string `json:"text"`
}

// InspectResponse is returned by /inspect.
type InspectResponse struct {
	Filename        string      `json:"filename"`
	Content         string      `json:"content"`
	Format          uint16      `json:"format"`
	TicksPerQuarter uint16      `json:"ticks_per_quarter"`
	LengthUS        int64       `json:"length_us,omitempty"`
	Tracks          []TrackInfo `json:"tracks"`
	Events          []EventInfo `json:"events"`
	Truncated       bool        `json:"truncated,omitempty"`
}

// handleInspect godoc
// @Summary Inspect a MIDI file
// @Description Upload a MIDI file and receive its header, tracks and events
// @Tags inspect
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file to inspect"
// @Param track query int false "Only list the events of this track"
// @Param limit query int false "Maximum number of events (default 1000)"
// @Success 200 {object} InspectResponse
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/inspect [post]
func handleInspect(c *gin.Context) {
	f, name, ok := upload(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}

	resp := InspectResponse{
		Filename:        name,
		Format:          f.Format,
		TicksPerQuarter: f.TicksPerQuarter,
		Tracks:          []TrackInfo{},
		Events:          []EventInfo{},
	}
	for _, t := range f.Tracks() {
		info, err := describeTrack(t)
		if err != nil {
			fail(c, err)
			return
		}
		resp.Tracks = append(resp.Tracks, info)
	}

	seq := f.Borrow()
	if q, ok := c.GetQuery("track"); ok {
		i, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "track must be an integer"})
			return
		}
		t, err := f.Track(i)
		if err != nil {
			fail(c, err)
			return
		}
		seq = t.Borrow()
	} else {
		if resp.LengthUS, err = f.LengthMicros(); err != nil && !errors.Is(err, midifile.ErrFormat2Merge) {
			fail(c, err)
			return
		}
		if err != nil {
			// format 2: list the first track
			seq = f.Tracks()[0].Borrow()
		}
	}

	var at int64
	for ev, err := range seq {
		if err != nil {
			fail(c, err)
			return
		}
		if len(resp.Events) == limit {
			resp.Truncated = true
			break
		}
		at += ev.DeltaUS
		resp.Events = append(resp.Events, eventInfo(ev, at))
	}

	c.JSON(http.StatusOK, resp)
}

// handleLength godoc
// @Summary Playing time of a MIDI file
// @Description Upload a MIDI file and receive its length
// @Tags inspect
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "MIDI file"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/length [post]
func handleLength(c *gin.Context) {
	f, name, ok := upload(c)
	if !ok {
		return
	}
	d, err := f.Duration()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filename":  name,
		"length_us": d.Microseconds(),
		"duration":  d.String(),
	})
}

func upload(c *gin.Context) (*midifile.File, string, bool) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}
	if int64(len(data)) > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file is larger than %d bytes", maxUploadSize)})
		return nil, "", false
	}
	if midifile.Sniff(data) == midifile.ContentUnknown {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "not a standard midi file"})
		return nil, "", false
	}

	f, err := midifile.Parse(data, midifile.DefaultOptions())
	if err != nil {
		fail(c, err)
		return nil, "", false
	}
	return f, header.Filename, true
}

func describeTrack(t *midifile.Track) (TrackInfo, error) {
	info := TrackInfo{Index: t.Index(), Bytes: t.Len()}
	for ev, err := range t.Borrow() {
		if err != nil {
			return info, err
		}
		info.Events++
		if info.Name == "" && ev.Status == midifile.TrackName {
			if msg, err := ev.Message(); err == nil {
				if name, ok := msg.(midifile.NameMsg); ok {
					info.Name = name.Name
				}
			}
		}
	}
	return info, nil
}

func eventInfo(ev *midifile.Event, at int64) EventInfo {
	info := EventInfo{
		Name:        ev.Name(),
		Status:      int(ev.StatusByte),
		DeltaTicks:  ev.DeltaTicks,
		DeltaUS:     ev.DeltaUS,
		TimestampUS: at,
		Data:        hex.EncodeToString(ev.Data),
		Text:        ev.String(),
	}
	if ch, ok := ev.Channel(); ok {
		info.Channel = &ch
	}
	return info
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, midifile.ErrNoTrack):
		status = http.StatusNotFound
	case errors.Is(err, midifile.ErrMalformed), errors.Is(err, midifile.ErrFormat2Merge):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
