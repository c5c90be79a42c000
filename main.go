/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           Impact Report API
// @version         1.0
// @description     Charity impact report workflow and validation API

// @contact.name   API Support
// @contact.email  support@example.com

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token from Keycloak
package main

import "github.com/Kaz-z/impact-engine-report-builder/cmd"

func main() {
	cmd.Execute()
}
