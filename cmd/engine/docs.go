package main

//go:generate swag init -g cmd/engine/main.go -o docs

// @title           Sharpline Engine API
// @version         0.1.0
// @description     Signal detection, deduplication, and backtesting controls.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
