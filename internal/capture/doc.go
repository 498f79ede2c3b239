// Package capture はキャプチャセッションのライフサイクルを担う
//
// # 責務
// - キャプチャグラフ（入力1つ、カラー出力と深度出力）の構築
// - セッション状態機械（Idle → Configuring → Running → Stopped/失敗）
// - セッション制御レーン（ライフサイクル操作を直列に実行する）
// - 深度フレームをフレーム配信レーンへ渡す
//
// # 仕様
//   - 構成は begin/commit で囲まれた1つのトランザクション。途中で失敗したら
//     破棄し、有効な接続を残さない
//   - 深度フィルタリングの有効化失敗は致命的ではない（警告して続行）
//   - 許可拒否と構成失敗は終端状態で、ホストに一度だけ通知する
//   - キャプチャグラフは制御レーンからのみ変更される
//
// # プラットフォーム
//   - SyntheticGraph: ハードウェアなしで動く合成グラフ（故障注入つき）
//   - V4L2Graph: Linuxの深度ノードから v4l2-ctl で Z16 フレームを読む
package capture
