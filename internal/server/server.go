package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streampulse/harvester/internal/catalog/domain"
	"github.com/streampulse/harvester/internal/checkpoint"
	"github.com/streampulse/harvester/internal/collector"
	"github.com/streampulse/harvester/internal/combiner"
	"github.com/streampulse/harvester/internal/config"
	"github.com/streampulse/harvester/internal/observability"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("admin.server",
	fx.Provide(NewEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

type routeParams struct {
	fx.In

	Engine      *gin.Engine
	DB          *gorm.DB
	Catalog     domain.Repository
	Checkpoints checkpoint.Store
	Collector   *collector.Collector
	Combiner    *combiner.Combiner
}

type syncVideoRequest struct {
	VideoID     string     `json:"video_id" binding:"required"`
	Name        string     `json:"name"`
	CreatedAt   *time.Time `json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
	DurationMS  int64      `json:"duration_ms"`
	Tags        string     `json:"tags"`
	ReferenceID string     `json:"reference_id"`
}

func registerRoutes(p routeParams) {
	v1 := p.Engine.Group("/v1")

	v1.GET("/runs", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 || limit > 200 {
			limit = 20
		}

		query := p.DB.WithContext(c.Request.Context()).
			Order("started_at DESC").
			Limit(limit)
		if accountID := c.Query("account_id"); accountID != "" {
			query = query.Where("account_id = ?", accountID)
		}

		var runs []collector.CollectionRun
		if err := query.Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	})

	v1.GET("/checkpoints/:scope", func(c *gin.Context) {
		rec, err := p.Checkpoints.Read(c.Request.Context(), c.Param("scope"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "checkpoint not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	v1.GET("/accounts/:account_id/videos/:video_id", func(c *gin.Context) {
		video, err := p.Catalog.FindByID(c.Request.Context(), p.DB, c.Param("account_id"), c.Param("video_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if video == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusOK, video)
	})

	v1.PUT("/accounts/:account_id/videos", func(c *gin.Context) {
		var req []syncVideoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(req) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least one video is required"})
			return
		}

		accountID := c.Param("account_id")
		videos := make([]*domain.Video, 0, len(req))
		for _, item := range req {
			videos = append(videos, &domain.Video{
				AccountID:   accountID,
				VideoID:     item.VideoID,
				Name:        item.Name,
				CreatedAt:   item.CreatedAt,
				PublishedAt: item.PublishedAt,
				DurationMS:  item.DurationMS,
				Tags:        item.Tags,
				ReferenceID: item.ReferenceID,
			})
		}
		if err := p.Catalog.Upsert(c.Request.Context(), p.DB, videos); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": accountID, "synced": len(videos)})
	})

	v1.POST("/accounts/:account_id/full-refresh", func(c *gin.Context) {
		accountID := c.Param("account_id")
		if err := p.Collector.FullRefresh(c.Request.Context(), accountID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"account_id": accountID, "status": "refresh scheduled"})
	})

	v1.GET("/accounts/:account_id/export", func(c *gin.Context) {
		fromYear, err := strconv.Atoi(c.Query("from_year"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from_year is required"})
			return
		}
		toYear, err := strconv.Atoi(c.DefaultQuery("to_year", c.Query("from_year")))
		if err != nil || toYear < fromYear {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to_year"})
			return
		}

		rows, err := p.Combiner.CombineYears(c.Request.Context(), c.Param("account_id"), fromYear, toYear)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename=metrics.csv")
		if err := combiner.ExportCSV(c.Writer, rows); err != nil {
			_ = c.Error(err)
		}
	})
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", zap.Error(err))
				}
			}()
			log.Info("admin server listening", zap.String("addr", cfg.AdminAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
