// Package telemetry installs OpenTelemetry trace and metric providers that
// export over OTLP.
//
// Instrumented packages obtain tracers and meters from the otel globals,
// so they report to whatever New installed, or to no-op providers when
// telemetry is disabled. Export failures never stop the application: New
// marks the instance degraded and carries on.
//
// Usage:
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
