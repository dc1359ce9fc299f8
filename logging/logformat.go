package logging

import (
	"bouncer/facts"
)

const (
	operationName = "RequestAdmission"
	category      = "FirewallLog"
	actionBlocked = "Blocked"
	actionLogged  = "Logged"
)

type firewallLogEntry struct {
	OperationName string                   `json:"operationName"`
	Category      string                   `json:"category"`
	Properties    firewallLogEntryProperty `json:"properties"`
}

type firewallLogEntryProperty struct {
	ClientIP      string                  `json:"clientIp"`
	RequestURI    string                  `json:"requestUri"`
	Method        string                  `json:"method"`
	UserAgent     string                  `json:"userAgent"`
	Hostname      string                  `json:"hostname"`
	RuleID        string                  `json:"ruleId"`
	Message       string                  `json:"message"`
	Action        string                  `json:"action"`
	Details       firewallLogDetailsEntry `json:"details"`
	TransactionID string                  `json:"transactionId"`
}

type firewallLogDetailsEntry struct {
	Message string `json:"message"`
}

func rejectedEntry(txid string, f *facts.Facts, rule string) *firewallLogEntry {
	p := baseProperty(txid, f)
	p.RuleID = rule
	p.Message = "Request rejected"
	p.Action = actionBlocked
	return &firewallLogEntry{OperationName: operationName, Category: category, Properties: p}
}

func evidenceFailedEntry(txid string, f *facts.Facts, err error) *firewallLogEntry {
	p := baseProperty(txid, f)
	p.Message = "Evidence for rejected request was not stored"
	p.Action = actionLogged
	if err != nil {
		p.Details.Message = err.Error()
	}
	return &firewallLogEntry{OperationName: operationName, Category: category, Properties: p}
}

func baseProperty(txid string, f *facts.Facts) (p firewallLogEntryProperty) {
	p.TransactionID = txid
	if f == nil {
		return
	}
	p.ClientIP = f.IP
	p.RequestURI = f.URI()
	p.Method = f.Method
	p.UserAgent = f.UserAgent
	p.Hostname = f.ServerName
	return
}
