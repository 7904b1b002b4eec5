// Package factory instantiates pluggable backends, such as metrics sinks and
// audit ledgers, from their configuration entries.
//
//	reg := factory.NewRegistry[schedule.Ledger]("audit ledger")
//	reg.MustRegister("jsonl", func(conf map[string]any) (schedule.Ledger, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return audit.NewJSONLLedger(c.Path, 10)
//	})
//	l, err := reg.Create(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": "ledger.jsonl"}})
package factory
