// Package ratelimit suppresses repeated operational warnings.
//
// # Overview
//
// A Cooldown answers one question: may this warning for this group be
// emitted now? The first request for a (group, class) pair is allowed and
// stamps the time; repeats inside the window are refused. After the window
// the next request is allowed again.
//
//	limiter := ratelimit.NewMemoryCooldown(ratelimit.Config{Window: time.Hour})
//	defer limiter.Close()
//
//	if ok, _ := limiter.ShouldEmit(ctx, groupID, "bot_not_admin"); ok {
//	    // post the warning
//	}
//
// MemoryCooldown is process-local and loses its entries on restart, which at
// worst lets one extra warning through. RedisCooldown shares the window
// across instances with SET NX PX.
//
// # Thread Safety
//
// Both implementations are safe for concurrent use.
package ratelimit
