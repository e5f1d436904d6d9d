package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/odvcencio/eventproxy/pkg/cdp"
	"github.com/odvcencio/eventproxy/pkg/logging"
)

// targetInfo mirrors the DevTools TargetInfo shape.
type targetInfo struct {
	TargetID         string `json:"targetId"`
	Type             string `json:"type"`
	URL              string `json:"url"`
	BrowserContextID string `json:"browserContextId"`
}

// attachPage finds or creates a page target on the browser connection and
// attaches a flattened session to it, producing the full handle set.
func attachPage(ctx context.Context, client *cdp.Client, logger *logging.Logger) (*Handles, error) {
	target, err := findPageTarget(ctx, client)
	if err != nil {
		return nil, err
	}
	if target == nil {
		created, err := createPageTarget(ctx, client)
		if err != nil {
			return nil, err
		}
		target = created
	}

	result, err := client.Send(ctx, "Target.attachToTarget", map[string]any{
		"targetId": target.TargetID,
		"flatten":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to target %s: %w", target.TargetID, err)
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &attached); err != nil {
		return nil, fmt.Errorf("parsing attach result: %w", err)
	}
	if attached.SessionID == "" {
		return nil, fmt.Errorf("attach to target %s returned empty session id", target.TargetID)
	}

	logger.Debug("attached to page target",
		slog.String("target_id", target.TargetID),
		slog.String("devtools_session_id", attached.SessionID),
	)

	return &Handles{
		Browser:          client,
		BrowserContextID: target.BrowserContextID,
		PageTargetID:     target.TargetID,
		Protocol:         cdp.NewSession(client, attached.SessionID),
	}, nil
}

func findPageTarget(ctx context.Context, client *cdp.Client) (*targetInfo, error) {
	result, err := client.Send(ctx, "Target.getTargets", nil)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	var listed struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("parsing target list: %w", err)
	}
	for i := range listed.TargetInfos {
		if listed.TargetInfos[i].Type == "page" {
			return &listed.TargetInfos[i], nil
		}
	}
	return nil, nil
}

func createPageTarget(ctx context.Context, client *cdp.Client) (*targetInfo, error) {
	result, err := client.Send(ctx, "Target.createTarget", map[string]any{
		"url": "about:blank",
	})
	if err != nil {
		return nil, fmt.Errorf("creating page target: %w", err)
	}
	var created struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, fmt.Errorf("parsing created target: %w", err)
	}

	// Re-list to learn the browser context the new target landed in.
	target, err := findPageTarget(ctx, client)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &targetInfo{TargetID: created.TargetID, Type: "page"}, nil
	}
	return target, nil
}

// releaseHandles tears a session down in the required order. Every step is
// attempted even when an earlier one fails.
func releaseHandles(ctx context.Context, handles *Handles, logger *logging.Logger) {
	if handles == nil {
		return
	}

	if handles.Protocol != nil && handles.Browser != nil {
		if _, err := handles.Browser.Send(ctx, "Target.detachFromTarget", map[string]any{
			"sessionId": handles.Protocol.ID(),
		}); err != nil {
			logger.Warn("detaching protocol session failed", slog.String("error", err.Error()))
		}
	}

	if handles.PageTargetID != "" && handles.Browser != nil {
		if _, err := handles.Browser.Send(ctx, "Target.closeTarget", map[string]any{
			"targetId": handles.PageTargetID,
		}); err != nil {
			logger.Warn("closing page target failed", slog.String("error", err.Error()))
		}
	}

	if handles.BrowserContextID != "" && handles.Browser != nil {
		if _, err := handles.Browser.Send(ctx, "Target.disposeBrowserContext", map[string]any{
			"browserContextId": handles.BrowserContextID,
		}); err != nil {
			// The default context cannot be disposed; expected for resumed sessions.
			logger.Debug("disposing browser context failed", slog.String("error", err.Error()))
		}
	}

	if handles.Browser != nil {
		if err := handles.Browser.Close(); err != nil {
			logger.Warn("closing browser connection failed", slog.String("error", err.Error()))
		}
	}
}
