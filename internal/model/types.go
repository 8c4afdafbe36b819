package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID  string          `json:"request_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Command    string          `json:"command"`
	Invocation *InvocationMeta `json:"invocation,omitempty"`
}

// InvocationMeta describes the upstream call behind an invoke command.
type InvocationMeta struct {
	Resource  string `json:"resource"`
	Action    string `json:"action"`
	Executor  string `json:"executor,omitempty"`
	Status    int    `json:"status,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// InvokeResult is the data of a successful invoke command. Body holds the
// decoded JSON when the result parses, otherwise the raw text.
type InvokeResult struct {
	Status int `json:"status,omitempty"`
	Body   any `json:"body"`
}

type Snippet struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ChainInfo struct {
	ChainID    string   `json:"chain_id"`
	EVMChainID int64    `json:"evm_chain_id"`
	CAIP2      string   `json:"caip2"`
	Name       string   `json:"name"`
	EVMRPC     []string `json:"evm_rpc,omitempty"`
	CosmosRPC  []string `json:"cosmos_rpc,omitempty"`
	CosmosLCD  []string `json:"cosmos_lcd,omitempty"`
	Gateway    string   `json:"gateway,omitempty"`
}
