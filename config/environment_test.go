package config

import "testing"

func TestAppEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv(appEnvVar, "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Errorf("env = %s, want %s", env, EnvironmentDevelopment)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	cases := map[string]string{
		"prod":       EnvironmentProduction,
		"PROD":       EnvironmentProduction,
		"stag":       EnvironmentStaging,
		"production": EnvironmentProduction,
		" staging ":  EnvironmentStaging,
		"custom":     "custom",
	}
	for raw, want := range cases {
		t.Setenv(appEnvVar, raw)
		if env := AppEnvironment(); env != want {
			t.Errorf("APP_ENV=%q: env = %s, want %s", raw, env, want)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Errorf("production and staging must be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) || IsProductionLike("custom") {
		t.Errorf("development must not be production-like")
	}
}

func TestValidateRequiresS3InProduction(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	c := defaultConfig()
	c.Reader.DataDir = "/data/di"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error without s3 in production")
	}
	c.Storage.S3.Enabled = true
	c.Storage.S3.Bucket = "depth-metrics"
	if err := c.Validate(); err != nil {
		t.Fatalf("valid production config rejected: %v", err)
	}
}
