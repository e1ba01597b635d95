// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/tejzpr/kioku/internal/memory"
)

// classify maps an SDK error onto the memory error taxonomy
func classify(op, providerName string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return memory.ProviderContextError(op, err)
	}

	status := 0
	var anthropicErr *anthropic.Error
	var openaiErr *openai.APIError
	var requestErr *openai.RequestError
	switch {
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		status = openaiErr.HTTPStatusCode
	case errors.As(err, &requestErr):
		status = requestErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return memory.NewQuotaError(op, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return memory.NewTimeoutError(op, err)
	}
	return memory.NewProviderError(op, fmt.Sprintf("%s request failed", providerName), err)
}

// pacer spaces outbound provider calls. A nil pacer never waits.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(perSecond float64, burst int) *pacer {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p *pacer) wait(ctx context.Context, op string) error {
	if p == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return memory.ProviderContextError(op, ctx.Err())
		}
		return memory.NewQuotaError(op, err)
	}
	return nil
}
