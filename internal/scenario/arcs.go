package scenario

// BuiltIn returns predefined traffic arcs.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"steady": {
			Name:        "Steady",
			Description: "Every node keeps its configured interval for the whole run.",
			Phases: []Phase{
				{Name: "steady", IntervalScale: 1},
			},
		},
		"burst": {
			Name:        "Burst",
			Description: "An alarm makes every node report four times faster before traffic settles again.",
			Phases: []Phase{
				{
					Name:          "quiet",
					Description:   "Nominal reporting.",
					IntervalScale: 1,
					Triggers:      []Trigger{{Event: EventStep, Value: 100, Next: "alarm"}},
				},
				{
					Name:          "alarm",
					Description:   "All sensors report at four times the nominal rate.",
					IntervalScale: 0.25,
					Triggers:      []Trigger{{Event: EventStep, Value: 200, Next: "recovery"}},
				},
				{
					Name:          "recovery",
					Description:   "Sensors back off to half the nominal rate.",
					IntervalScale: 2,
				},
			},
		},
		"ramp": {
			Name:        "Ramp",
			Description: "Traffic doubles each time the server has collected another batch of packets.",
			Phases: []Phase{
				{
					Name:          "low",
					IntervalScale: 4,
					Triggers:      []Trigger{{Event: EventDelivered, Value: 50, Next: "medium"}},
				},
				{
					Name:          "medium",
					IntervalScale: 2,
					Triggers:      []Trigger{{Event: EventDelivered, Value: 150, Next: "high"}},
				},
				{
					Name:          "high",
					IntervalScale: 1,
				},
			},
		},
	}
}
