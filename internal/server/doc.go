// Package server は、キャプチャセッションの診断用HTTPサーバーを提供します。
//
// 責務:
//   - セッションの状態と構成の公開
//   - 最新の深度サンプルの公開
//   - Prometheusメトリクスの配信
//
// 仕様:
//   - ルーティングには gin を使用
//   - 読み取り専用で、セッションの操作は行わない
//   - グレースフルシャットダウンに対応
package server
