package config

type WorkerKeyStruct struct {
	PersistResultsQueue  string
	PersistAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue:  "persist_results_queue",
	PersistAttemptsQueue: "persist_attempts_queue",
}
