//go:build !cuda

package main

const backendName = "cpu"
